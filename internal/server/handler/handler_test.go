package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
)

type stubOrders struct {
	submitted []domain.OrderSubmission
	submitErr error
	stored    map[common.Hash]domain.StoredOrder
	filter    domain.OrderFilter
	opts      domain.ListOpts
}

func (s *stubOrders) SubmitOrder(_ context.Context, sub domain.OrderSubmission) (common.Hash, error) {
	s.submitted = append(s.submitted, sub)
	if s.submitErr != nil {
		return common.Hash{}, s.submitErr
	}
	return common.HexToHash("0xabc"), nil
}

func (s *stubOrders) GetOrder(_ context.Context, hash common.Hash) (domain.StoredOrder, error) {
	o, ok := s.stored[hash]
	if !ok {
		return domain.StoredOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *stubOrders) ListOrders(_ context.Context, f domain.OrderFilter, opts domain.ListOpts) ([]domain.StoredOrder, error) {
	s.filter, s.opts = f, opts
	var out []domain.StoredOrder
	for _, o := range s.stored {
		out = append(out, o)
	}
	return out, nil
}

func (s *stubOrders) CancelOrder(_ context.Context, hash common.Hash) error {
	o, ok := s.stored[hash]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != domain.OrderStatusOpen {
		return domain.ErrNotOpen
	}
	return nil
}

func (s *stubOrders) OrderHistory(_ context.Context, hash common.Hash, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	if _, ok := s.stored[hash]; !ok {
		return nil, domain.ErrNotFound
	}
	return []domain.AuditEntry{
		{Event: domain.AuditOrderSubmitted, OrderHash: hash, RequestID: "req-1", CreatedAt: time.Unix(1_700_000_000, 0).UTC()},
		{Event: domain.AuditOrderCancelled, OrderHash: hash, Detail: map[string]any{"previous_status": "open"}, CreatedAt: time.Unix(1_700_000_060, 0).UTC()},
	}, nil
}

func newTestMux(svc OrderService) *http.ServeMux {
	h := NewOrderHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", h.SubmitOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{hash}", h.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{hash}", h.CancelOrder)
	mux.HandleFunc("GET /api/orders/{hash}/history", h.OrderHistory)
	return mux
}

const validBody = `{"encodedOrder":"0x01","signature":"0x` +
	"1111111111111111111111111111111111111111111111111111111111111111" +
	"1111111111111111111111111111111111111111111111111111111111111111" +
	`1b","chainId":1,"orderType":"Dutch"}`

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

type errorEnvelope struct {
	Error struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		ChainID   int64  `json:"chainId"`
		OrderType string `json:"orderType"`
	} `json:"error"`
}

func TestSubmitOrder_Created(t *testing.T) {
	svc := &stubOrders{}
	rec := do(newTestMux(svc), http.MethodPost, "/api/orders", validBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"hash":"`+common.HexToHash("0xabc").Hex()+`"}`, rec.Body.String())

	require.Len(t, svc.submitted, 1)
	require.Equal(t, domain.OrderTypeDutch, svc.submitted[0].OrderType)
	require.Equal(t, []byte{0x01}, svc.submitted[0].EncodedOrder)
}

func TestSubmitOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"unexpected type", &orders.Error{Kind: orders.KindUnexpectedOrderType, Variant: "Dutch", Actual: "Limit", ChainID: 1, Declared: "Dutch"}, http.StatusBadRequest, "UnexpectedOrderType"},
		{"decode failure", &orders.Error{Kind: orders.KindDecodeFailure, ChainID: 1}, http.StatusBadRequest, "DecodeFailure"},
		{"reactor mismatch", &orders.Error{Kind: orders.KindFallbackReactorMismatch, ChainID: 1}, http.StatusBadRequest, "FallbackReactorMismatch"},
		{"config missing", &orders.Error{Kind: orders.KindFallbackConfigurationMissing, ChainID: 1}, http.StatusInternalServerError, "FallbackConfigurationMissing"},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, ""},
		{"duplicate", domain.ErrAlreadyExists, http.StatusConflict, ""},
		{"internal", errors.New("db down"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(newTestMux(&stubOrders{submitErr: tc.err}), http.MethodPost, "/api/orders", validBody)
			require.Equal(t, tc.want, rec.Code)
			if tc.kind == "" {
				return
			}
			var env errorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.Equal(t, tc.kind, env.Error.Kind)
			require.Equal(t, int64(1), env.Error.ChainID)
			require.NotContains(t, rec.Body.String(), "0x1111", "payload and signature must not leak")
		})
	}
}

func TestSubmitOrder_BadRequests(t *testing.T) {
	svc := &stubOrders{}
	mux := newTestMux(svc)

	rec := do(mux, http.MethodPost, "/api/orders", `{"encodedOrder":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/api/orders", `{"encodedOrder":"0x01","extra":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/api/orders", `{"encodedOrder":"0x01","signature":"0x00","chainId":1,"orderType":"Priority"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "DecodeFailure", env.Error.Kind)

	require.Empty(t, svc.submitted)
}

func storedFixture() domain.StoredOrder {
	hash := common.HexToHash("0x1234")
	order := &domain.DutchOrder{DutchParams: domain.DutchParams{Info: domain.OrderInfo{
		Reactor: orders.DutchReactor, Nonce: big.NewInt(9), Deadline: 100,
	}}}
	return domain.StoredOrder{
		Hash: hash, Type: domain.OrderTypeDutch, ChainID: 1,
		Reactor: orders.DutchReactor, Nonce: big.NewInt(9), Deadline: 100,
		EncodedOrder: []byte{0xde, 0xad}, Signature: []byte{0x01},
		Decoded: order, Status: domain.OrderStatusOpen,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGetOrder(t *testing.T) {
	o := storedFixture()
	mux := newTestMux(&stubOrders{stored: map[common.Hash]domain.StoredOrder{o.Hash: o}})

	rec := do(mux, http.MethodGet, "/api/orders/"+o.Hash.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, o.Hash.Hex(), got["hash"])
	require.Equal(t, "0xdead", got["encodedOrder"])
	require.Equal(t, "9", got["nonce"])
	require.Equal(t, "open", got["orderStatus"])

	rec = do(mux, http.MethodGet, "/api/orders/"+common.HexToHash("0x99").Hex(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodGet, "/api/orders/0x1234", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders(t *testing.T) {
	o := storedFixture()
	svc := &stubOrders{stored: map[common.Hash]domain.StoredOrder{o.Hash: o}}
	mux := newTestMux(svc)

	swapper := "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	rec := do(mux, http.MethodGet, "/api/orders?chainId=1&orderType=Dutch&swapper="+swapper+"&limit=1000&offset=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), svc.filter.ChainID)
	require.Equal(t, domain.OrderTypeDutch, svc.filter.OrderType)
	require.Equal(t, common.HexToAddress(swapper), *svc.filter.Swapper)
	require.Equal(t, 500, svc.opts.Limit)
	require.Equal(t, 5, svc.opts.Offset)

	var body struct {
		Orders []map[string]any `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Orders, 1)

	for _, q := range []string{"?chainId=x", "?orderType=Priority", "?swapper=0x12", "?orderStatus=lost", "?limit=-1", "?since=yesterday"} {
		rec := do(mux, http.MethodGet, "/api/orders"+q, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCancelOrder(t *testing.T) {
	o := storedFixture()
	mux := newTestMux(&stubOrders{stored: map[common.Hash]domain.StoredOrder{o.Hash: o}})

	rec := do(mux, http.MethodDelete, "/api/orders/"+o.Hash.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, http.MethodDelete, "/api/orders/"+common.HexToHash("0x77").Hex(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOrder_NotOpenConflicts(t *testing.T) {
	o := storedFixture()
	o.Status = domain.OrderStatusFilled
	mux := newTestMux(&stubOrders{stored: map[common.Hash]domain.StoredOrder{o.Hash: o}})

	rec := do(mux, http.MethodDelete, "/api/orders/"+o.Hash.Hex(), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "order is not open")
}

func TestOrderHistory(t *testing.T) {
	o := storedFixture()
	mux := newTestMux(&stubOrders{stored: map[common.Hash]domain.StoredOrder{o.Hash: o}})

	rec := do(mux, http.MethodGet, "/api/orders/"+o.Hash.Hex()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Hash    string `json:"hash"`
		History []struct {
			Event     string         `json:"event"`
			RequestID string         `json:"requestId"`
			Detail    map[string]any `json:"detail"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, o.Hash.Hex(), body.Hash)
	require.Len(t, body.History, 2)
	require.Equal(t, "order_submitted", body.History[0].Event)
	require.Equal(t, "req-1", body.History[0].RequestID)
	require.Equal(t, "open", body.History[1].Detail["previous_status"])

	rec = do(mux, http.MethodGet, "/api/orders/"+common.HexToHash("0x55").Hex()+"/history", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodGet, "/api/orders/nothex/history", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Check{"postgres": ok, "redis": ok}, logger).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Check{"postgres": ok, "redis": down}, logger).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"down"`)
}

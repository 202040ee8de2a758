// Package handler implements the REST endpoints of the order service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
	"github.com/security-alliance/uniswapx-service/internal/server/middleware"
)

// OrderService is what the order handler needs from the service layer.
type OrderService interface {
	SubmitOrder(ctx context.Context, sub domain.OrderSubmission) (common.Hash, error)
	GetOrder(ctx context.Context, hash common.Hash) (domain.StoredOrder, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.StoredOrder, error)
	CancelOrder(ctx context.Context, hash common.Hash) error
	OrderHistory(ctx context.Context, hash common.Hash, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// OrderHandler serves /api/orders.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(svc OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: svc, logger: logger}
}

type orderResponse struct {
	Hash         string                `json:"hash"`
	OrderType    domain.OrderType      `json:"orderType"`
	ChainID      int64                 `json:"chainId"`
	Reactor      string                `json:"reactor"`
	Swapper      string                `json:"swapper"`
	Nonce        string                `json:"nonce"`
	Deadline     uint64                `json:"deadline"`
	EncodedOrder string                `json:"encodedOrder"`
	Signature    string                `json:"signature"`
	QuoteID      string                `json:"quoteId,omitempty"`
	RequestID    string                `json:"requestId,omitempty"`
	Status       domain.OrderStatus    `json:"orderStatus"`
	CreatedAt    time.Time             `json:"createdAt"`
	Order        domain.CanonicalOrder `json:"order"`
}

func toResponse(o domain.StoredOrder) orderResponse {
	nonce := "0"
	if o.Nonce != nil {
		nonce = o.Nonce.String()
	}
	return orderResponse{
		Hash:         o.Hash.Hex(),
		OrderType:    o.Type,
		ChainID:      o.ChainID,
		Reactor:      o.Reactor.Hex(),
		Swapper:      o.Swapper.Hex(),
		Nonce:        nonce,
		Deadline:     o.Deadline,
		EncodedOrder: hexutil.Encode(o.EncodedOrder),
		Signature:    hexutil.Encode(o.Signature),
		QuoteID:      o.QuoteID,
		RequestID:    o.RequestID,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
		Order:        o.Decoded,
	}
}

// SubmitOrder decodes and stores a signed order.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.SubmissionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RequestID == "" {
		req.RequestID = middleware.RequestID(r.Context())
	}

	sub, err := orders.ParseSubmission(req)
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	hash, err := h.orders.SubmitOrder(r.Context(), sub)
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"hash": hash.Hex()})
}

func (h *OrderHandler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var oe *orders.Error
	switch {
	case errors.As(err, &oe):
		status := http.StatusBadRequest
		if oe.Kind == orders.KindFallbackConfigurationMissing {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorBody{Error: oe.Public()})
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many submissions for this swapper")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "order already submitted")
	default:
		h.logger.ErrorContext(r.Context(), "handler: submit order failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit order")
	}
}

// GetOrder returns one order.
// GET /api/orders/{hash}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order hash")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(o))
}

// ListOrders returns orders newest first.
// GET /api/orders?swapper=0x...&orderType=Dutch&chainId=1&orderStatus=open&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order filter")
		return
	}
	opts, ok := parseListOpts(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	list, err := h.orders.ListOrders(r.Context(), filter, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// CancelOrder marks an order cancelled.
// DELETE /api/orders/{hash}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order hash")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), hash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if errors.Is(err, domain.ErrNotOpen) {
			writeError(w, http.StatusConflict, "order is not open")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
			slog.String("hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"hash":        hash.Hex(),
		"orderStatus": string(domain.OrderStatusCancelled),
	})
}

type historyEntry struct {
	Event     domain.AuditEvent `json:"event"`
	RequestID string            `json:"requestId,omitempty"`
	Detail    map[string]any    `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// OrderHistory returns the intake audit trail of one order, oldest first.
// GET /api/orders/{hash}/history?limit=50
func (h *OrderHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(r.PathValue("hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order hash")
		return
	}
	opts, ok := parseListOpts(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	entries, err := h.orders.OrderHistory(r.Context(), hash, opts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: order history failed",
			slog.String("hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load order history")
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Event:     e.Event,
			RequestID: e.RequestID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": hash.Hex(), "history": out})
}

func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func parseFilter(r *http.Request) (domain.OrderFilter, bool) {
	q := r.URL.Query()
	var f domain.OrderFilter
	if v := q.Get("swapper"); v != "" {
		if !common.IsHexAddress(v) {
			return f, false
		}
		addr := common.HexToAddress(v)
		f.Swapper = &addr
	}
	if v := q.Get("orderType"); v != "" {
		f.OrderType = domain.OrderType(v)
		if !f.OrderType.Valid() {
			return f, false
		}
	}
	if v := q.Get("chainId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return f, false
		}
		f.ChainID = n
	}
	if v := q.Get("orderStatus"); v != "" {
		f.Status = domain.OrderStatus(v)
		switch f.Status {
		case domain.OrderStatusOpen, domain.OrderStatusFilled, domain.OrderStatusCancelled, domain.OrderStatusExpired:
		default:
			return f, false
		}
	}
	return f, true
}

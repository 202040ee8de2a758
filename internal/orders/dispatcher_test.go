package orders_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
)

func newDispatcher(t *testing.T, allow ...string) *orders.Dispatcher {
	t.Helper()
	list, err := orders.NewAllowList(allow)
	require.NoError(t, err)
	return orders.NewDispatcher(orders.DefaultRegistry(), list, discardLogger())
}

func TestParse_LegacyDutchRoundTrip(t *testing.T) {
	d := newDispatcher(t)
	want := dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_300)

	got, err := d.Parse(submission(encodeDutch(t, want), orders.ChainMainnet, ""))
	require.NoError(t, err)

	order, ok := got.(*domain.DutchOrder)
	require.True(t, ok, "got %T", got)
	require.Equal(t, domain.OrderTypeDutch, order.Type())
	require.LessOrEqual(t, order.DecayStartTime, order.DecayEndTime)
	requireDutchParams(t, want, order.DutchParams)

	meta := order.Meta()
	require.Equal(t, testSignature, meta.Signature)
	require.Equal(t, orders.ChainMainnet, meta.ChainID)
	require.Equal(t, "quote-1", meta.QuoteID)
	require.Equal(t, "req-1", meta.RequestID)
}

func TestParse_LegacyLimit(t *testing.T) {
	d := newDispatcher(t)

	tests := []struct {
		name   string
		params domain.DutchParams
	}{
		{"collapsed window", limitParams(orders.DutchReactor, 1_700_000_000)},
		{"collapsed window with decaying amounts", dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_000)},
		{"flat amounts over a window", func() domain.DutchParams {
			p := limitParams(orders.DutchReactor, 1_700_000_000)
			p.DecayEndTime = 1_700_000_500
			return p
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Parse(submission(encodeDutch(t, tt.params), orders.ChainMainnet, ""))
			require.NoError(t, err)

			order, ok := got.(*domain.LimitOrder)
			require.True(t, ok, "got %T", got)
			require.Equal(t, domain.OrderTypeLimit, order.Type())
			requireDutchParams(t, tt.params, order.DutchParams)
		})
	}
}

func TestParse_DeclaredDutchAndLimit(t *testing.T) {
	d := newDispatcher(t)
	dutch := encodeDutch(t, dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_300))
	limit := encodeDutch(t, limitParams(orders.DutchReactor, 1_700_000_000))

	got, err := d.Parse(submission(dutch, orders.ChainMainnet, domain.OrderTypeDutch))
	require.NoError(t, err)
	require.Equal(t, domain.OrderTypeDutch, got.Type())

	got, err = d.Parse(submission(limit, orders.ChainMainnet, domain.OrderTypeLimit))
	require.NoError(t, err)
	require.Equal(t, domain.OrderTypeLimit, got.Type())

	_, err = d.Parse(submission(limit, orders.ChainMainnet, domain.OrderTypeDutch))
	e := requireKind(t, err, orders.KindUnexpectedOrderType)
	require.Equal(t, domain.OrderTypeLimit, e.Actual)
	require.Equal(t, domain.OrderTypeDutch, e.Variant)

	_, err = d.Parse(submission(dutch, orders.ChainMainnet, domain.OrderTypeLimit))
	e = requireKind(t, err, orders.KindUnexpectedOrderType)
	require.Equal(t, domain.OrderTypeDutch, e.Actual)
}

func TestParse_BackwardsWindowIsUnexpected(t *testing.T) {
	d := newDispatcher(t)
	encoded := encodeDutch(t, dutchParams(orders.DutchReactor, 1_700_000_300, 1_700_000_000))

	_, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeDutch))
	requireKind(t, err, orders.KindUnexpectedOrderType)
}

func TestParse_DeclaredDutchNoFallback(t *testing.T) {
	d := newDispatcher(t, customReactor.Hex())
	encoded := encodeDutch(t, dutchParams(customReactor, 1_700_000_000, 1_700_000_300))

	_, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeDutch))
	requireKind(t, err, orders.KindDecodeFailure)
}

func TestParse_DutchV2(t *testing.T) {
	d := newDispatcher(t)

	tests := []struct {
		name    string
		chainID int64
		reactor func() *domain.DutchV2Order
	}{
		{"mainnet", orders.ChainMainnet, func() *domain.DutchV2Order { return v2Order(orders.DutchV2Reactor) }},
		{"arbitrum", orders.ChainArbitrum, func() *domain.DutchV2Order { return v2Order(orders.ArbitrumDutchV2Reactor) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.reactor()
			got, err := d.Parse(submission(encodeV2(t, want), tt.chainID, domain.OrderTypeDutchV2))
			require.NoError(t, err)

			order, ok := got.(*domain.DutchV2Order)
			require.True(t, ok, "got %T", got)
			requireInfo(t, want.Info, order.Info)
			require.Equal(t, want.Cosigner, order.Cosigner)
			require.Equal(t, want.Cosignature, order.Cosignature)
			require.Equal(t, want.BaseInput.Token, order.BaseInput.Token)
			requireBig(t, want.BaseInput.StartAmount, order.BaseInput.StartAmount, "base input start")
			requireBig(t, want.BaseInput.MaxAmount, order.BaseInput.MaxAmount, "base input max")
			requireOutputs(t, want.BaseOutputs, order.BaseOutputs)

			cd := order.CosignerData
			require.Equal(t, want.CosignerData.DecayStartTime, cd.DecayStartTime)
			require.Equal(t, want.CosignerData.DecayEndTime, cd.DecayEndTime)
			require.Equal(t, want.CosignerData.ExclusiveFiller, cd.ExclusiveFiller)
			requireBig(t, want.CosignerData.ExclusivityOverrideBps, cd.ExclusivityOverrideBps, "exclusivity bps")
			requireBig(t, want.CosignerData.InputOverride, cd.InputOverride, "input override")
			require.Len(t, cd.OutputOverrides, len(want.CosignerData.OutputOverrides))
			for i := range cd.OutputOverrides {
				requireBig(t, want.CosignerData.OutputOverrides[i], cd.OutputOverrides[i], "output override")
			}
		})
	}
}

func TestParse_DutchV2Rejections(t *testing.T) {
	d := newDispatcher(t, orders.DutchReactor.Hex())

	t.Run("v1 payload never falls through", func(t *testing.T) {
		encoded := encodeDutch(t, dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_300))
		got, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeDutchV2))
		require.Nil(t, got)
		e := requireKind(t, err, orders.KindDecodeFailure)
		require.Equal(t, domain.OrderTypeDutchV2, e.Variant)
	})

	t.Run("wrong reactor", func(t *testing.T) {
		encoded := encodeV2(t, v2Order(orders.DutchReactor))
		_, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeDutchV2))
		requireKind(t, err, orders.KindDecodeFailure)
	})

	t.Run("reactor from another chain", func(t *testing.T) {
		encoded := encodeV2(t, v2Order(orders.ArbitrumDutchV2Reactor))
		_, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeDutchV2))
		requireKind(t, err, orders.KindDecodeFailure)
	})

	t.Run("override count mismatch", func(t *testing.T) {
		o := v2Order(orders.DutchV2Reactor)
		o.CosignerData.OutputOverrides = o.CosignerData.OutputOverrides[:1]
		_, err := d.Parse(submission(encodeV2(t, o), orders.ChainMainnet, domain.OrderTypeDutchV2))
		requireKind(t, err, orders.KindDecodeFailure)
	})

	t.Run("no overrides", func(t *testing.T) {
		o := v2Order(orders.DutchV2Reactor)
		o.CosignerData.OutputOverrides = nil
		got, err := d.Parse(submission(encodeV2(t, o), orders.ChainMainnet, domain.OrderTypeDutchV2))
		require.NoError(t, err)
		require.Equal(t, domain.OrderTypeDutchV2, got.Type())
	})
}

func TestParse_Relay(t *testing.T) {
	d := newDispatcher(t)
	want := relayOrder(orders.RelayReactor)

	got, err := d.Parse(submission(encodeRelay(t, want), orders.ChainMainnet, domain.OrderTypeRelay))
	require.NoError(t, err)

	order, ok := got.(*domain.RelayOrder)
	require.True(t, ok, "got %T", got)
	require.Equal(t, want.Info.Reactor, order.Info.Reactor)
	require.Equal(t, want.Info.Swapper, order.Info.Swapper)
	requireBig(t, want.Info.Nonce, order.Info.Nonce, "nonce")
	require.Equal(t, want.Info.Deadline, order.Info.Deadline)
	require.Equal(t, want.Input.Token, order.Input.Token)
	require.Equal(t, want.Input.Recipient, order.Input.Recipient)
	requireBig(t, want.Input.Amount, order.Input.Amount, "input amount")
	require.Equal(t, want.Fee.Token, order.Fee.Token)
	requireBig(t, want.Fee.StartAmount, order.Fee.StartAmount, "fee start")
	requireBig(t, want.Fee.EndAmount, order.Fee.EndAmount, "fee end")
	require.Equal(t, want.Fee.StartTime, order.Fee.StartTime)
	require.Equal(t, want.Fee.EndTime, order.Fee.EndTime)
	require.Equal(t, want.UniversalRouterCalldata, order.UniversalRouterCalldata)
}

func TestParse_RelayDerivedTypeMismatch(t *testing.T) {
	d := newDispatcher(t)

	t.Run("dutch reactor", func(t *testing.T) {
		encoded := encodeRelay(t, relayOrder(orders.DutchReactor))
		got, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeRelay))
		require.Nil(t, got)
		e := requireKind(t, err, orders.KindUnexpectedOrderType)
		require.Equal(t, domain.OrderTypeDutch, e.Actual)
		require.Equal(t, domain.OrderTypeRelay, e.Variant)
	})

	t.Run("unknown reactor", func(t *testing.T) {
		encoded := encodeRelay(t, relayOrder(customReactor))
		_, err := d.Parse(submission(encoded, orders.ChainMainnet, domain.OrderTypeRelay))
		e := requireKind(t, err, orders.KindUnexpectedOrderType)
		require.Empty(t, e.Actual)
		require.Contains(t, e.Message(), "unknown")
	})

	t.Run("relay reactor on unsupported chain", func(t *testing.T) {
		encoded := encodeRelay(t, relayOrder(orders.RelayReactor))
		_, err := d.Parse(submission(encoded, orders.ChainPolygon, domain.OrderTypeRelay))
		requireKind(t, err, orders.KindUnexpectedOrderType)
	})
}

func TestParse_LegacyFallback(t *testing.T) {
	encoded := encodeDutch(t, dutchParams(customReactor, 1_700_000_000, 1_700_000_300))
	sub := submission(encoded, orders.ChainMainnet, "")

	t.Run("allow-listed reactor in any case", func(t *testing.T) {
		for _, addr := range []string{
			strings.ToLower(customReactor.Hex()),
			"0x" + strings.ToUpper(customReactor.Hex()[2:]),
			customReactor.Hex(),
		} {
			d := newDispatcher(t, addr)
			got, err := d.Parse(sub)
			require.NoError(t, err)

			order, ok := got.(*domain.DutchOrder)
			require.True(t, ok, "got %T", got)
			require.Equal(t, customReactor, order.Reactor())
			require.Equal(t, testSignature, order.Signature)
		}
	})

	t.Run("no allow-list", func(t *testing.T) {
		_, err := newDispatcher(t).Parse(sub)
		requireKind(t, err, orders.KindFallbackConfigurationMissing)
		require.True(t, errors.Is(err, orders.ErrFallbackConfigurationMissing))
	})

	t.Run("reactor not allow-listed", func(t *testing.T) {
		_, err := newDispatcher(t, orders.RelayReactor.Hex()).Parse(sub)
		e := requireKind(t, err, orders.KindFallbackReactorMismatch)
		require.Equal(t, customReactor, e.Reactor)
	})

	t.Run("backwards window on allow-listed custom reactor", func(t *testing.T) {
		backwards := encodeDutch(t, dutchParams(customReactor, 1_700_000_300, 1_700_000_000))
		bad := submission(backwards, orders.ChainMainnet, "")

		_, err := orders.DecodeLegacyFallback(bad, mustAllow(t, customReactor.Hex()))
		requireKind(t, err, orders.KindUnexpectedOrderType)

		got, err := newDispatcher(t, customReactor.Hex()).Parse(bad)
		require.Nil(t, got)
		requireKind(t, err, orders.KindDecodeFailure)
	})

	t.Run("typed submissions never fall back", func(t *testing.T) {
		d := newDispatcher(t, customReactor.Hex())
		for _, typ := range []domain.OrderType{domain.OrderTypeDutch, domain.OrderTypeLimit, domain.OrderTypeDutchV2} {
			typed := sub
			typed.OrderType = typ
			_, err := d.Parse(typed)
			requireKind(t, err, orders.KindDecodeFailure)
		}
	})
}

func TestParse_LegacyFallbackLogsNoFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	d := orders.NewDispatcher(orders.DefaultRegistry(), mustAllow(t, customReactor.Hex()), logger)

	encoded := encodeDutch(t, dutchParams(customReactor, 1_700_000_000, 1_700_000_300))
	_, err := d.Parse(submission(encoded, orders.ChainMainnet, ""))
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "decode failed")
	require.Contains(t, buf.String(), "decoded via legacy reactor fallback")

	buf.Reset()
	_, err = d.Parse(submission([]byte("garbage"), orders.ChainMainnet, ""))
	require.Error(t, err)
	require.Contains(t, buf.String(), "decode failed")
}

func mustAllow(t *testing.T, addrs ...string) orders.AllowList {
	t.Helper()
	list, err := orders.NewAllowList(addrs)
	require.NoError(t, err)
	return list
}

func TestParse_LegacyBothFailReportsPrimary(t *testing.T) {
	d := newDispatcher(t, customReactor.Hex())
	garbage := []byte("definitely not an abi encoded order")

	_, err := d.Parse(submission(garbage, 10, ""))
	e := requireKind(t, err, orders.KindDecodeFailure)
	require.Contains(t, e.Error(), "unsupported chain 10")
}

func TestParse_LegacyNeverYieldsV2OrRelay(t *testing.T) {
	d := newDispatcher(t, orders.DutchV2Reactor.Hex(), orders.RelayReactor.Hex())
	payloads := [][]byte{
		encodeV2(t, v2Order(orders.DutchV2Reactor)),
		encodeRelay(t, relayOrder(orders.RelayReactor)),
	}
	for _, p := range payloads {
		got, err := d.Parse(submission(p, orders.ChainMainnet, ""))
		if err == nil {
			require.Contains(t, []domain.OrderType{domain.OrderTypeDutch, domain.OrderTypeLimit}, got.Type())
		}
	}
}

func TestParse_MalformedPayloads(t *testing.T) {
	d := newDispatcher(t, customReactor.Hex())
	valid := encodeDutch(t, dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_300))

	payloads := map[string][]byte{
		"empty":     nil,
		"truncated": valid[:len(valid)/2],
		"one word":  valid[:32],
		"junk":      hexutil.MustDecode("0xdeadbeef"),
	}
	types := []domain.OrderType{"", domain.OrderTypeDutch, domain.OrderTypeLimit, domain.OrderTypeDutchV2, domain.OrderTypeRelay}

	for name, p := range payloads {
		for _, typ := range types {
			t.Run(name+"/"+string(typ), func(t *testing.T) {
				got, err := d.Parse(submission(p, orders.ChainMainnet, typ))
				require.Nil(t, got)
				requireKind(t, err, orders.KindDecodeFailure)
			})
		}
	}
}

func TestParse_UnknownDeclaredType(t *testing.T) {
	d := newDispatcher(t)
	encoded := encodeDutch(t, dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_300))

	_, err := d.Parse(submission(encoded, orders.ChainMainnet, "Priority"))
	requireKind(t, err, orders.KindDecodeFailure)
}

func TestParse_Deterministic(t *testing.T) {
	d := newDispatcher(t, customReactor.Hex())

	subs := []domain.OrderSubmission{
		submission(encodeDutch(t, dutchParams(orders.DutchReactor, 1_700_000_000, 1_700_000_300)), orders.ChainMainnet, ""),
		submission(encodeDutch(t, limitParams(orders.DutchReactor, 1_700_000_000)), orders.ChainMainnet, ""),
		submission(encodeDutch(t, dutchParams(customReactor, 1_700_000_000, 1_700_000_300)), orders.ChainMainnet, ""),
		submission(encodeV2(t, v2Order(orders.DutchV2Reactor)), orders.ChainMainnet, domain.OrderTypeDutchV2),
		submission(encodeRelay(t, relayOrder(orders.DutchReactor)), orders.ChainMainnet, domain.OrderTypeRelay),
		submission([]byte{0x01, 0x02}, orders.ChainMainnet, ""),
	}
	for _, sub := range subs {
		first, firstErr := d.Parse(sub)
		second, secondErr := d.Parse(sub)
		require.Equal(t, first, second)
		if firstErr == nil {
			require.NoError(t, secondErr)
			continue
		}
		var a, b *orders.Error
		require.ErrorAs(t, firstErr, &a)
		require.ErrorAs(t, secondErr, &b)
		require.Equal(t, a.Kind, b.Kind)
		require.Equal(t, a.Error(), b.Error())
	}
}

func TestPublicErrorOmitsPayload(t *testing.T) {
	d := newDispatcher(t)
	encoded := encodeDutch(t, dutchParams(customReactor, 1_700_000_000, 1_700_000_300))
	sub := submission(encoded, orders.ChainMainnet, domain.OrderTypeDutchV2)

	_, err := d.Parse(sub)
	e := requireKind(t, err, orders.KindDecodeFailure)

	pub := e.Public()
	require.Equal(t, orders.KindDecodeFailure, pub.Kind)
	require.Equal(t, orders.ChainMainnet, pub.ChainID)
	require.Equal(t, domain.OrderTypeDutchV2, pub.OrderType)
	require.NotContains(t, pub.Message, hexutil.Encode(encoded)[2:66])
	require.NotContains(t, pub.Message, hexutil.Encode(testSignature))
}

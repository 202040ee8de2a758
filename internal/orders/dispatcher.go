package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// Dispatcher routes a submission to the decoder(s) for its declared order
// type. It holds only immutable configuration and may be shared between
// goroutines.
type Dispatcher struct {
	registry *Registry
	allow    AllowList
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. The allow-list may be empty; that only
// matters once an untyped submission reaches the legacy fallback.
func NewDispatcher(registry *Registry, allow AllowList, logger *slog.Logger) *Dispatcher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		allow:    allow,
		logger:   logger.With(slog.String("component", "order_dispatcher")),
	}
}

// Registry returns the reactor registry the dispatcher decodes against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Parse decodes sub into a canonical order. Every failure is an *Error.
//
//	Relay      relay decoder only
//	Dutch_V2   V2 decoder only
//	Dutch      generic decoder, inferred type must be Dutch
//	Limit      generic decoder, inferred type must be Limit
//	(none)     generic decoder, then the legacy reactor fallback
func (d *Dispatcher) Parse(sub domain.OrderSubmission) (domain.CanonicalOrder, error) {
	switch sub.OrderType {
	case domain.OrderTypeRelay:
		order, err := DecodeRelay(sub, d.registry)
		if err != nil {
			return nil, d.report(sub, err)
		}
		return order, nil

	case domain.OrderTypeDutchV2:
		order, err := DecodeDutchV2(sub, d.registry)
		if err != nil {
			return nil, d.report(sub, err)
		}
		return order, nil

	case domain.OrderTypeDutch, domain.OrderTypeLimit:
		order, err := DecodeDutch(sub, d.registry)
		if err != nil {
			return nil, d.report(sub, err)
		}
		if order.Type() != sub.OrderType {
			return nil, d.report(sub, unexpectedType(sub, sub.OrderType, order.Type()))
		}
		return order, nil

	case "":
		return d.parseLegacy(sub)

	default:
		return nil, d.report(sub, decodeFailure(sub, "", fmt.Errorf("unknown order type %q", sub.OrderType)))
	}
}

// parseLegacy handles submissions without a declared type. If both the
// generic decoder and the fallback's re-decode fail, the generic decoder's
// error is returned. Allow-list failures from the fallback are returned as
// they are. The generic failure is only reported once the fallback fails too.
func (d *Dispatcher) parseLegacy(sub domain.OrderSubmission) (domain.CanonicalOrder, error) {
	order, primaryErr := DecodeDutch(sub, d.registry)
	if primaryErr == nil {
		return order, nil
	}
	d.logger.Debug("orders: trying legacy fallback",
		slog.Int64("chain_id", sub.ChainID),
		slog.String("request_id", sub.RequestID),
		slog.String("error", primaryErr.Error()),
	)

	order, fallbackErr := DecodeLegacyFallback(sub, d.allow)
	if fallbackErr == nil {
		d.logger.Info("orders: decoded via legacy reactor fallback",
			slog.String("reactor", order.Reactor().Hex()),
			slog.Int64("chain_id", sub.ChainID),
			slog.String("request_id", sub.RequestID),
		)
		return order, nil
	}
	d.report(sub, primaryErr)
	d.report(sub, fallbackErr)

	if errors.Is(fallbackErr, ErrFallbackConfigurationMissing) || errors.Is(fallbackErr, ErrFallbackReactorMismatch) {
		return nil, fallbackErr
	}
	return nil, primaryErr
}

// report logs a decode failure with the full submission context and returns
// it unchanged. Payload and signature bytes only ever reach the log.
func (d *Dispatcher) report(sub domain.OrderSubmission, err error) error {
	attrs := []any{
		slog.Int64("chain_id", sub.ChainID),
		slog.String("declared_type", string(sub.OrderType)),
		slog.String("encoded_order", hexutil.Encode(sub.EncodedOrder)),
		slog.String("signature", hexutil.Encode(sub.Signature)),
		slog.String("quote_id", sub.QuoteID),
		slog.String("request_id", sub.RequestID),
		slog.String("error", err.Error()),
	}
	var e *Error
	if errors.As(err, &e) {
		attrs = append(attrs,
			slog.String("kind", string(e.Kind)),
			slog.String("variant", string(e.Variant)),
		)
	}

	level := slog.LevelWarn
	if errors.Is(err, ErrFallbackConfigurationMissing) {
		level = slog.LevelError
	}
	d.logger.Log(context.Background(), level, "orders: decode failed", attrs...)
	return err
}

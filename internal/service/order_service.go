// Package service holds the order intake workflow that sits between the HTTP
// handlers and the decode, cache and storage layers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/security-alliance/uniswapx-service/internal/crypto"
	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
)

// OrdersChannel is the signal bus channel accepted orders are published on.
const OrdersChannel = "orders"

// Decoder turns a submission into a canonical order.
type Decoder interface {
	Parse(sub domain.OrderSubmission) (domain.CanonicalOrder, error)
}

// OrderEvent is the payload published for every accepted order.
type OrderEvent struct {
	Event     domain.AuditEvent `json:"event"`
	Hash      string            `json:"hash"`
	OrderType domain.OrderType  `json:"orderType,omitempty"`
	ChainID   int64             `json:"chainId,omitempty"`
	Swapper   string            `json:"swapper,omitempty"`
	Reactor   string            `json:"reactor,omitempty"`
	Deadline  uint64            `json:"deadline,omitempty"`
}

// IntakeLimits bounds how often a swapper may submit and how long a
// submission holds its dedupe lock.
type IntakeLimits struct {
	SubmitRateLimit  int
	SubmitRateWindow time.Duration
	DedupeTTL        time.Duration
}

// OrderService accepts, stores and serves orders.
type OrderService struct {
	decoder Decoder
	orders  domain.OrderStore
	limiter domain.RateLimiter
	locks   domain.LockManager
	bus     domain.SignalBus
	audit   domain.AuditStore
	archive domain.RejectionArchive
	limits  IntakeLimits
	now     func() time.Time
	logger  *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	decoder Decoder,
	orderStore domain.OrderStore,
	limiter domain.RateLimiter,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	limits IntakeLimits,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		decoder: decoder,
		orders:  orderStore,
		limiter: limiter,
		locks:   locks,
		bus:     bus,
		audit:   audit,
		limits:  limits,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// WithArchive attaches a store for rejected submissions. Without one,
// rejections are only audited.
func (s *OrderService) WithArchive(a domain.RejectionArchive) *OrderService {
	s.archive = a
	return s
}

// SubmitOrder decodes, deduplicates and stores a submission and returns the
// accepted order's hash. Decode failures are returned as *orders.Error.
func (s *OrderService) SubmitOrder(ctx context.Context, sub domain.OrderSubmission) (common.Hash, error) {
	order, err := s.decoder.Parse(sub)
	if err != nil {
		s.reject(ctx, sub, err)
		return common.Hash{}, err
	}

	swapper := order.Swapper()
	if s.limits.SubmitRateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "submit:"+swapper.Hex(), s.limits.SubmitRateLimit, s.limits.SubmitRateWindow)
		if err != nil {
			return common.Hash{}, fmt.Errorf("order_service: rate limiter: %w", err)
		}
		if !allowed {
			return common.Hash{}, domain.ErrRateLimited
		}
	}

	hash := crypto.OrderHash(sub.EncodedOrder)

	release, err := s.locks.Acquire(ctx, "order:"+hash.Hex(), s.limits.DedupeTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return common.Hash{}, fmt.Errorf("order_service: order %s in flight: %w", hash.Hex(), domain.ErrAlreadyExists)
		}
		return common.Hash{}, fmt.Errorf("order_service: dedupe lock: %w", err)
	}
	defer release()

	stored := domain.NewStoredOrder(hash, order, s.now())
	if err := s.orders.Create(ctx, stored); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return common.Hash{}, fmt.Errorf("order_service: order %s: %w", hash.Hex(), err)
		}
		return common.Hash{}, fmt.Errorf("order_service: create order: %w", err)
	}

	s.publish(ctx, domain.AuditOrderSubmitted, stored)

	if auditErr := s.audit.Record(ctx, domain.AuditEntry{
		Event:     domain.AuditOrderSubmitted,
		OrderHash: hash,
		ChainID:   stored.ChainID,
		RequestID: stored.RequestID,
		Detail: map[string]any{
			"order_type": string(stored.Type),
			"swapper":    swapper.Hex(),
			"reactor":    stored.Reactor.Hex(),
			"quote_id":   stored.QuoteID,
		},
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("hash", hash.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order_service: order accepted",
		slog.String("hash", hash.Hex()),
		slog.String("order_type", string(stored.Type)),
		slog.Int64("chain_id", stored.ChainID),
		slog.String("swapper", swapper.Hex()),
	)
	return hash, nil
}

// reject records a decode failure. Audit and archive errors are logged and
// never mask the decode error.
func (s *OrderService) reject(ctx context.Context, sub domain.OrderSubmission, decodeErr error) {
	kind := "Unknown"
	var oe *orders.Error
	if errors.As(decodeErr, &oe) {
		kind = string(oe.Kind)
	}

	detail := map[string]any{
		"kind":       kind,
		"order_type": string(sub.OrderType),
		"quote_id":   sub.QuoteID,
		"error":      decodeErr.Error(),
	}

	if s.archive != nil {
		key, err := s.archive.Archive(ctx, domain.RejectedSubmission{
			RequestID:    sub.RequestID,
			QuoteID:      sub.QuoteID,
			ChainID:      sub.ChainID,
			OrderType:    sub.OrderType,
			EncodedOrder: hexutil.Encode(sub.EncodedOrder),
			Signature:    hexutil.Encode(sub.Signature),
			Kind:         kind,
			Reason:       decodeErr.Error(),
			ReceivedAt:   s.now(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "order_service: archive rejection failed",
				slog.String("request_id", sub.RequestID),
				slog.String("error", err.Error()),
			)
		} else {
			detail["archive_key"] = key
		}
	}

	if err := s.audit.Record(ctx, domain.AuditEntry{
		Event:     domain.AuditOrderRejected,
		ChainID:   sub.ChainID,
		RequestID: sub.RequestID,
		Detail:    detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("request_id", sub.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

// GetOrder retrieves a single order by hash.
func (s *OrderService) GetOrder(ctx context.Context, hash common.Hash) (domain.StoredOrder, error) {
	o, err := s.orders.GetByHash(ctx, hash)
	if err != nil {
		return domain.StoredOrder{}, fmt.Errorf("order_service: get order %s: %w", hash.Hex(), err)
	}
	return o, nil
}

// ListOrders returns orders matching filter, newest first.
func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.StoredOrder, error) {
	out, err := s.orders.List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders: %w", err)
	}
	return out, nil
}

// CancelOrder marks an open order cancelled and announces it on the bus.
// Orders that are no longer open fail with domain.ErrNotOpen and are left
// untouched.
func (s *OrderService) CancelOrder(ctx context.Context, hash common.Hash) error {
	o, err := s.orders.GetByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("order_service: cancel order %s: %w", hash.Hex(), err)
	}
	if o.Status != domain.OrderStatusOpen {
		return fmt.Errorf("order_service: cancel order %s (%s): %w", hash.Hex(), o.Status, domain.ErrNotOpen)
	}
	if err := s.orders.UpdateStatus(ctx, hash, domain.OrderStatusOpen, domain.OrderStatusCancelled); err != nil {
		return fmt.Errorf("order_service: cancel order %s: %w", hash.Hex(), err)
	}

	s.publish(ctx, domain.AuditOrderCancelled, o)
	if auditErr := s.audit.Record(ctx, domain.AuditEntry{
		Event:     domain.AuditOrderCancelled,
		OrderHash: hash,
		ChainID:   o.ChainID,
		RequestID: o.RequestID,
		Detail:    map[string]any{"previous_status": string(o.Status)},
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("hash", hash.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}
	return nil
}

// publish announces o on OrdersChannel. Bus failures only cost live
// subscribers the event, so they are logged and dropped.
func (s *OrderService) publish(ctx context.Context, event domain.AuditEvent, o domain.StoredOrder) {
	payload, err := json.Marshal(OrderEvent{
		Event:     event,
		Hash:      o.Hash.Hex(),
		OrderType: o.Type,
		ChainID:   o.ChainID,
		Swapper:   o.Swapper.Hex(),
		Reactor:   o.Reactor.Hex(),
		Deadline:  o.Deadline,
	})
	if err == nil {
		err = s.bus.Publish(ctx, OrdersChannel, payload)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "order_service: publish event failed",
			slog.String("event", string(event)),
			slog.String("hash", o.Hash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// OrderHistory returns the audit trail of an accepted order, oldest first.
func (s *OrderService) OrderHistory(ctx context.Context, hash common.Hash, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if _, err := s.orders.GetByHash(ctx, hash); err != nil {
		return nil, fmt.Errorf("order_service: order history %s: %w", hash.Hex(), err)
	}
	entries, err := s.audit.List(ctx, domain.AuditFilter{OrderHash: &hash}, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: order history %s: %w", hash.Hex(), err)
	}
	return entries, nil
}

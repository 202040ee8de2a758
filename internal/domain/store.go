package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts pages list queries. Since and Until bound created_at.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists accepted orders keyed by order hash.
type OrderStore interface {
	Create(ctx context.Context, order StoredOrder) error
	GetByHash(ctx context.Context, hash common.Hash) (StoredOrder, error)
	List(ctx context.Context, filter OrderFilter, opts ListOpts) ([]StoredOrder, error)
	// UpdateStatus moves an order from one status to another. It returns
	// ErrNotOpen when the stored status is no longer from.
	UpdateStatus(ctx context.Context, hash common.Hash, from, to OrderStatus) error
}

// AuditEvent names a step in an order's intake history.
type AuditEvent string

const (
	AuditOrderSubmitted AuditEvent = "order_submitted"
	AuditOrderRejected  AuditEvent = "order_rejected"
	AuditOrderCancelled AuditEvent = "order_cancelled"
)

// AuditEntry is one row of the intake audit trail. Rejected submissions
// never get a hash, so OrderHash is zero for them and RequestID is the
// only handle back to the request.
type AuditEntry struct {
	ID        int64
	Event     AuditEvent
	OrderHash common.Hash
	ChainID   int64
	RequestID string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditFilter narrows audit listings. Zero values are ignored.
type AuditFilter struct {
	OrderHash *common.Hash
	Event     AuditEvent
	RequestID string
}

// AuditStore records the append-only intake audit trail.
type AuditStore interface {
	Record(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, filter AuditFilter, opts ListOpts) ([]AuditEntry, error)
}

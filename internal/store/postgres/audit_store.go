package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// AuditStore writes the intake audit trail to the order_audit table.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Record appends e. A zero OrderHash is stored as NULL.
func (s *AuditStore) Record(ctx context.Context, e domain.AuditEntry) error {
	if e.Detail == nil {
		e.Detail = map[string]any{}
	}
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	var hash *string
	if e.OrderHash != (common.Hash{}) {
		h := e.OrderHash.Hex()
		hash = &h
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO order_audit (event, order_hash, chain_id, request_id, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		string(e.Event), hash, e.ChainID, nullIfEmpty(e.RequestID), detail,
	); err != nil {
		return fmt.Errorf("postgres: record %s: %w", e.Event, err)
	}
	return nil
}

// List returns audit entries oldest first, so an order's history reads in
// the order it happened.
func (s *AuditStore) List(ctx context.Context, filter domain.AuditFilter, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	sql, args := buildAuditQuery(filter, opts)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			event  string
			hash   string
			detail []byte
		)
		if err := rows.Scan(&e.ID, &event, &hash, &e.ChainID, &e.RequestID, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		e.Event = domain.AuditEvent(event)
		if hash != "" {
			e.OrderHash = common.HexToHash(hash)
		}
		if err := json.Unmarshal(detail, &e.Detail); err != nil {
			return nil, fmt.Errorf("postgres: audit entry %d detail: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit rows: %w", err)
	}
	return entries, nil
}

func buildAuditQuery(filter domain.AuditFilter, opts domain.ListOpts) (string, []any) {
	q := newQuery(`SELECT id, event, COALESCE(order_hash, ''), chain_id,
		COALESCE(request_id, ''), detail, created_at FROM order_audit WHERE 1=1`)
	if filter.OrderHash != nil {
		q.where("order_hash = $%d", filter.OrderHash.Hex())
	}
	if filter.Event != "" {
		q.where("event = $%d", string(filter.Event))
	}
	if filter.RequestID != "" {
		q.where("request_id = $%d", filter.RequestID)
	}
	q.window(opts)
	q.orderBy("created_at, id")
	q.page(opts)
	return q.sql, q.args
}

var _ domain.AuditStore = (*AuditStore)(nil)

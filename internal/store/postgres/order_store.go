package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts an accepted order. A second insert of the same hash fails
// with domain.ErrAlreadyExists.
func (s *OrderStore) Create(ctx context.Context, o domain.StoredOrder) error {
	decoded, err := json.Marshal(o.Decoded)
	if err != nil {
		return fmt.Errorf("postgres: marshal order %s: %w", o.Hash.Hex(), err)
	}
	nonce := "0"
	if o.Nonce != nil {
		nonce = o.Nonce.String()
	}

	const query = `
		INSERT INTO orders (
			hash, order_type, chain_id, reactor, swapper, nonce, deadline,
			encoded_order, signature, quote_id, request_id, decoded,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::numeric, $7::numeric,
			$8, $9, $10, $11, $12,
			$13, $14, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		o.Hash.Hex(), string(o.Type), o.ChainID,
		o.Reactor.Hex(), o.Swapper.Hex(),
		nonce, strconv.FormatUint(o.Deadline, 10),
		o.EncodedOrder, o.Signature,
		nullIfEmpty(o.QuoteID), nullIfEmpty(o.RequestID),
		decoded, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create order %s: %w", o.Hash.Hex(), err)
	}
	return nil
}

// UpdateStatus changes the status of an order that is still in from.
func (s *OrderStore) UpdateStatus(ctx context.Context, hash common.Hash, from, to domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE hash = $2 AND status = $3`,
		string(to), hash.Hex(), string(from))
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", hash.Hex(), err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE hash = $1)`, hash.Hex(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", hash.Hex(), err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrNotOpen
}

const orderSelectCols = `hash, order_type, chain_id, reactor, swapper,
	nonce::text, deadline::text, encoded_order, signature,
	COALESCE(quote_id, ''), COALESCE(request_id, ''), decoded, status, created_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.StoredOrder, error) {
	var o domain.StoredOrder
	var hash, orderType, reactor, swapper, nonce, deadline, status string
	var decoded []byte

	err := scanner.Scan(
		&hash, &orderType, &o.ChainID, &reactor, &swapper,
		&nonce, &deadline, &o.EncodedOrder, &o.Signature,
		&o.QuoteID, &o.RequestID, &decoded, &status, &o.CreatedAt,
	)
	if err != nil {
		return domain.StoredOrder{}, err
	}

	o.Hash = common.HexToHash(hash)
	o.Type = domain.OrderType(orderType)
	o.Reactor = common.HexToAddress(reactor)
	o.Swapper = common.HexToAddress(swapper)
	o.Status = domain.OrderStatus(status)

	var ok bool
	if o.Nonce, ok = new(big.Int).SetString(nonce, 10); !ok {
		return domain.StoredOrder{}, fmt.Errorf("invalid nonce %q", nonce)
	}
	if o.Deadline, err = strconv.ParseUint(deadline, 10, 64); err != nil {
		return domain.StoredOrder{}, fmt.Errorf("invalid deadline %q: %w", deadline, err)
	}
	if o.Decoded, err = domain.UnmarshalCanonical(o.Type, decoded, o.EncodedOrder); err != nil {
		return domain.StoredOrder{}, err
	}
	return o, nil
}

// GetByHash retrieves a single order by its hash.
func (s *OrderStore) GetByHash(ctx context.Context, hash common.Hash) (domain.StoredOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE hash = $1`, hash.Hex())

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredOrder{}, domain.ErrNotFound
		}
		return domain.StoredOrder{}, fmt.Errorf("postgres: get order %s: %w", hash.Hex(), err)
	}
	return o, nil
}

// List returns orders matching filter, newest first.
func (s *OrderStore) List(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.StoredOrder, error) {
	query, args := buildListQuery(filter, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.StoredOrder
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

func buildListQuery(filter domain.OrderFilter, opts domain.ListOpts) (string, []any) {
	q := newQuery(`SELECT ` + orderSelectCols + ` FROM orders WHERE 1=1`)
	if filter.Swapper != nil {
		q.where("swapper = $%d", filter.Swapper.Hex())
	}
	if filter.OrderType != "" {
		q.where("order_type = $%d", string(filter.OrderType))
	}
	if filter.ChainID != 0 {
		q.where("chain_id = $%d", filter.ChainID)
	}
	if filter.Status != "" {
		q.where("status = $%d", string(filter.Status))
	}
	q.window(opts)
	q.orderBy("created_at DESC, hash")
	q.page(opts)
	return q.sql, q.args
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[common.Hash]domain.StoredOrder
	err    error
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: map[common.Hash]domain.StoredOrder{}}
}

func (m *memOrderStore) Create(_ context.Context, o domain.StoredOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.orders[o.Hash]; ok {
		return domain.ErrAlreadyExists
	}
	m.orders[o.Hash] = o
	return nil
}

func (m *memOrderStore) GetByHash(_ context.Context, hash common.Hash) (domain.StoredOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[hash]
	if !ok {
		return domain.StoredOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOrderStore) List(_ context.Context, filter domain.OrderFilter, _ domain.ListOpts) ([]domain.StoredOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StoredOrder
	for _, o := range m.orders {
		if filter.ChainID != 0 && o.ChainID != filter.ChainID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memOrderStore) UpdateStatus(_ context.Context, hash common.Hash, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[hash]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != from {
		return domain.ErrNotOpen
	}
	o.Status = to
	m.orders[hash] = o
	return nil
}

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEntry
}

func (m *memAudit) Record(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) List(_ context.Context, f domain.AuditFilter, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.events {
		if f.OrderHash != nil && e.OrderHash != *f.OrderHash {
			continue
		}
		if f.Event != "" && e.Event != f.Event {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memAudit) last() domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

type countingLimiter struct {
	mu    sync.Mutex
	seen  map[string]int
	calls int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= limit, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = map[string]bool{}
	}
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type memArchive struct {
	records []domain.RejectedSubmission
}

func (a *memArchive) Archive(_ context.Context, rec domain.RejectedSubmission) (string, error) {
	a.records = append(a.records, rec)
	return "rejected/test.json", nil
}

package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists inscription requests. CompareAndSwap must apply next only when
// the stored status still equals from, so racing transitions on one id resolve
// to a single winner. A payment tx id may belong to one request only; reuse
// fails with ErrPaymentTxReused.
type Store interface {
	Get(ctx context.Context, id string) (Request, error)
	Put(ctx context.Context, req Request) error
	CompareAndSwap(ctx context.Context, id string, from Status, next Request) error
	ListByStatus(ctx context.Context, status Status) ([]Request, error)
}

// MemoryStore keeps requests for the life of the process. A single mutex
// serializes every transition, which is enough for one process; deployments
// with several workers need the PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]Request
	paidBy map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]Request),
		paidBy: make(map[string]string),
	}
}

// claimTx must be called with mu held.
func (m *MemoryStore) claimTx(id, txid string) error {
	if txid == "" {
		return nil
	}
	if owner, ok := m.paidBy[txid]; ok && owner != id {
		return fmt.Errorf("%w: %s paid %s", ErrPaymentTxReused, txid, owner)
	}
	m.paidBy[txid] = id
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.data[id]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req, nil
}

func (m *MemoryStore) Put(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[req.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}
	if err := m.claimTx(req.ID, req.PaymentTxID); err != nil {
		return err
	}
	m.data[req.ID] = req
	return nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, id string, from Status, next Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if cur.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, id, cur.Status, from)
	}
	if err := m.claimTx(id, next.PaymentTxID); err != nil {
		return err
	}
	next.ID = id
	m.data[id] = next
	return nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status Status) ([]Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Request
	for _, req := range m.data {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

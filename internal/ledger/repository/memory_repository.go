package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"live_session_service/internal/ledger/domain"
	errprocess "live_session_service/pkg/err"
)

type memoryLedger struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet
	refs    map[string]struct{}
	entries []domain.Entry
}

// NewMemoryLedgerRepository in process LedgerRepository, one mutex serialises every mutation
func NewMemoryLedgerRepository() LedgerRepository {
	return &memoryLedger{
		wallets: make(map[string]*domain.Wallet),
		refs:    make(map[string]struct{}),
	}
}

func (m *memoryLedger) CreateWallet(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.wallets[ownerID]; !ok {
		m.wallets[ownerID] = &domain.Wallet{OwnerID: ownerID, UpdatedAt: time.Now()}
	}
	return nil
}

func (m *memoryLedger) GetWallet(_ context.Context, ownerID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[ownerID]
	if !ok {
		return nil, errprocess.ErrUnknownAccount
	}
	cp := *w
	return &cp, nil
}

func (m *memoryLedger) book(e domain.Entry) bool {
	if _, seen := m.refs[e.Reference]; seen {
		return false
	}
	m.refs[e.Reference] = struct{}{}
	m.entries = append(m.entries, e)
	return true
}

func (m *memoryLedger) Credit(_ context.Context, ownerID string, e domain.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[ownerID]
	if !ok {
		return false, errprocess.ErrUnknownAccount
	}
	if _, seen := m.refs[e.Reference]; seen {
		return false, nil
	}
	if !domain.CanReceive(w.Balance, e.Amount) {
		return false, errprocess.ErrInvalidAmount
	}
	m.book(e)
	w.Balance += e.Amount
	w.UpdatedAt = e.CreatedAt
	return true, nil
}

func (m *memoryLedger) Debit(_ context.Context, ownerID string, e domain.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[ownerID]
	if !ok {
		return false, errprocess.ErrUnknownAccount
	}
	if _, seen := m.refs[e.Reference]; seen {
		return false, nil
	}
	if w.Balance < e.Amount {
		return false, errprocess.ErrInsufficientBalance
	}
	m.book(e)
	w.Balance -= e.Amount
	w.UpdatedAt = e.CreatedAt
	return true, nil
}

func (m *memoryLedger) Transfer(_ context.Context, fromID, toID string, e domain.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, okFrom := m.wallets[fromID]
	to, okTo := m.wallets[toID]
	if !okFrom || !okTo {
		return false, errprocess.ErrUnknownAccount
	}
	if _, seen := m.refs[e.Reference]; seen {
		return false, nil
	}
	if from.Balance < e.Amount {
		return false, errprocess.ErrInsufficientBalance
	}
	if fromID != toID && !domain.CanReceive(to.Balance, e.Amount) {
		return false, errprocess.ErrInvalidAmount
	}
	m.book(e)
	from.Balance -= e.Amount
	to.Balance += e.Amount
	from.UpdatedAt, to.UpdatedAt = e.CreatedAt, e.CreatedAt
	return true, nil
}

func (m *memoryLedger) RecentEntries(_ context.Context, ownerID string, limit int) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Entry
	for _, e := range m.entries {
		if e.FromID == ownerID || e.ToID == ownerID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

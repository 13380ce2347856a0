package app

import (
	"context"
	"sync"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/goal/domain"
	ledgerdomain "live_session_service/internal/ledger/domain"

	"github.com/stretchr/testify/mock"
)

// MockGoalRepository Mock GoalRepository
type MockGoalRepository struct {
	mock.Mock
}

// AutoMigrate mock auto migrate
func (m *MockGoalRepository) AutoMigrate() error {
	return m.Called().Error(0)
}

// CreateExclusive mock create exclusive
func (m *MockGoalRepository) CreateExclusive(ctx context.Context, goal *domain.DonationGoal) error {
	return m.Called(ctx, goal).Error(0)
}

// Get mock get
func (m *MockGoalRepository) Get(ctx context.Context, id string) (*domain.DonationGoal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.DonationGoal), args.Error(1)
	}
	return nil, args.Error(1)
}

// Latest mock latest
func (m *MockGoalRepository) Latest(ctx context.Context, roomID string) (*domain.DonationGoal, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.DonationGoal), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateLocked mock update locked
func (m *MockGoalRepository) UpdateLocked(ctx context.Context, id string, fn func(g *domain.DonationGoal) error) (*domain.DonationGoal, error) {
	args := m.Called(ctx, id, fn)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.DonationGoal), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListDueDecisions mock list due decisions
func (m *MockGoalRepository) ListDueDecisions(ctx context.Context, now time.Time) ([]domain.DonationGoal, error) {
	args := m.Called(ctx, now)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.DonationGoal), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListRefundPending mock list refund pending
func (m *MockGoalRepository) ListRefundPending(ctx context.Context) ([]domain.DonationGoal, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.DonationGoal), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockLedger Mock Ledger
type MockLedger struct {
	mock.Mock
}

// Debit mock debit
func (m *MockLedger) Debit(ctx context.Context, fromID string, amount int64, kind ledgerdomain.EntryKind, reference string) error {
	return m.Called(ctx, fromID, amount, kind, reference).Error(0)
}

// Compensate mock compensate
func (m *MockLedger) Compensate(ctx context.Context, ownerID string, amount int64, reference string) error {
	return m.Called(ctx, ownerID, amount, reference).Error(0)
}

// Refund mock refund
func (m *MockLedger) Refund(ctx context.Context, orders []ledgerdomain.RefundOrder) (ledgerdomain.RefundReport, error) {
	args := m.Called(ctx, orders)
	return args.Get(0).(ledgerdomain.RefundReport), args.Error(1)
}

// MockNotifier Mock Notifier
type MockNotifier struct {
	mock.Mock
}

// Notify mock notify
func (m *MockNotifier) Notify(ctx context.Context, userID, title, body string) {
	m.Called(ctx, userID, title, body)
}

type recordingBus struct {
	mu    sync.Mutex
	kinds []eventdomain.EventKind
	views []domain.GoalView
}

func (b *recordingBus) Emit(_ context.Context, _ string, kind eventdomain.EventKind, _ string, _ int64, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	view, _ := payload.(domain.GoalView)
	b.kinds = append(b.kinds, kind)
	b.views = append(b.views, view)
}

func (b *recordingBus) last(kind eventdomain.EventKind) (domain.GoalView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.kinds) - 1; i >= 0; i-- {
		if b.kinds[i] == kind {
			return b.views[i], true
		}
	}
	return domain.GoalView{}, false
}

package app

import (
	"context"
	"sync"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/gift/domain"

	"github.com/stretchr/testify/mock"
)

// MockGiftRepository Mock GiftRepository
type MockGiftRepository struct {
	mock.Mock
}

// AutoMigrate mock auto migrate
func (m *MockGiftRepository) AutoMigrate() error {
	return m.Called().Error(0)
}

// SeedCatalog mock seed catalog
func (m *MockGiftRepository) SeedCatalog(ctx context.Context, kinds []domain.GiftKind) error {
	return m.Called(ctx, kinds).Error(0)
}

// Kind mock kind
func (m *MockGiftRepository) Kind(ctx context.Context, id string) (*domain.GiftKind, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.GiftKind), args.Error(1)
	}
	return nil, args.Error(1)
}

// Catalog mock catalog
func (m *MockGiftRepository) Catalog(ctx context.Context) ([]domain.GiftKind, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.GiftKind), args.Error(1)
	}
	return nil, args.Error(1)
}

// Record mock record
func (m *MockGiftRepository) Record(ctx context.Context, gift *domain.Gift) error {
	return m.Called(ctx, gift).Error(0)
}

// ListByRoom mock list by room
func (m *MockGiftRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.Gift, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Gift), args.Error(1)
	}
	return nil, args.Error(1)
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
	mu       sync.Mutex
	payloads []interface{}
	kinds    []eventdomain.EventKind
	streams  []string
}

func (b *recordingBus) Emit(_ context.Context, _ string, kind eventdomain.EventKind, stream string, _ int64, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, kind)
	b.streams = append(b.streams, stream)
	b.payloads = append(b.payloads, payload)
}

func (b *recordingBus) gifts() []domain.Celebration {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Celebration
	for i, k := range b.kinds {
		if k == eventdomain.KindGiftSent {
			out = append(out, b.payloads[i].(domain.Celebration))
		}
	}
	return out
}

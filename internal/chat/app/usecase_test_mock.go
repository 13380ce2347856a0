package app

import (
	"context"
	"sync"

	"live_session_service/internal/chat/domain"
	eventdomain "live_session_service/internal/eventbus/domain"
	roomdomain "live_session_service/internal/room/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// EnsureIndexes mock ensure indexes
func (m *MockMessageRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Append mock append
func (m *MockMessageRepository) Append(ctx context.Context, msg domain.ChatMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// Recent mock recent
func (m *MockMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteRoom mock delete room
func (m *MockMessageRepository) DeleteRoom(ctx context.Context, roomID string) error {
	return m.Called(ctx, roomID).Error(0)
}

// MockGate Mock Gate
type MockGate struct {
	mock.Mock
}

// Check mock check
func (m *MockGate) Check(ctx context.Context, roomID, userID string, action roomdomain.Action) error {
	return m.Called(ctx, roomID, userID, action).Error(0)
}

type recordingBus struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	streams  []string
	versions []int64
}

func (b *recordingBus) Emit(_ context.Context, _ string, kind eventdomain.EventKind, stream string, version int64, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kind != eventdomain.KindChatMessage {
		return
	}
	b.messages = append(b.messages, payload.(domain.ChatMessage))
	b.streams = append(b.streams, stream)
	b.versions = append(b.versions, version)
}

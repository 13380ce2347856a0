package app

import (
	"context"
	"sync"

	eventdomain "live_session_service/internal/eventbus/domain"

	"github.com/stretchr/testify/mock"
)

type recordingBus struct {
	mu     sync.Mutex
	kinds  []eventdomain.EventKind
	values []int64
}

func (b *recordingBus) Emit(_ context.Context, _ string, kind eventdomain.EventKind, _ string, version int64, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, kind)
	b.values = append(b.values, version)
}

func (b *recordingBus) count(kind eventdomain.EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

// MockNotifier Mock Notifier
type MockNotifier struct {
	mock.Mock
}

// Notify mock notify
func (m *MockNotifier) Notify(ctx context.Context, userID, title, body string) {
	m.Called(ctx, userID, title, body)
}

package app

import (
	"context"

	"live_session_service/internal/notify/domain"

	"github.com/stretchr/testify/mock"
)

// MockSender Mock Sender
type MockSender struct {
	mock.Mock
}

// Send mock send
func (m *MockSender) Send(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

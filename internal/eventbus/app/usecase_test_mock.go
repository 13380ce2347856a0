package app

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTransport Mock Transport
type MockTransport struct {
	mock.Mock
}

// Publish mock publish
func (m *MockTransport) Publish(ctx context.Context, roomID string, body []byte) error {
	args := m.Called(ctx, roomID, body)
	return args.Error(0)
}

// Subscribe mock subscribe
func (m *MockTransport) Subscribe(ctx context.Context, roomID string, handler func(body []byte)) error {
	args := m.Called(ctx, roomID, handler)
	return args.Error(0)
}

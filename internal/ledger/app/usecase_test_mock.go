package app

import (
	"context"

	"live_session_service/internal/ledger/domain"

	"github.com/stretchr/testify/mock"
)

// MockLedgerRepository Mock LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

// CreateWallet mock create wallet
func (m *MockLedgerRepository) CreateWallet(ctx context.Context, ownerID string) error {
	args := m.Called(ctx, ownerID)
	return args.Error(0)
}

// GetWallet mock get wallet
func (m *MockLedgerRepository) GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Wallet), args.Error(1)
	}
	return nil, args.Error(1)
}

// Credit mock credit
func (m *MockLedgerRepository) Credit(ctx context.Context, ownerID string, entry domain.Entry) (bool, error) {
	args := m.Called(ctx, ownerID, entry)
	return args.Bool(0), args.Error(1)
}

// Debit mock debit
func (m *MockLedgerRepository) Debit(ctx context.Context, ownerID string, entry domain.Entry) (bool, error) {
	args := m.Called(ctx, ownerID, entry)
	return args.Bool(0), args.Error(1)
}

// Transfer mock transfer
func (m *MockLedgerRepository) Transfer(ctx context.Context, fromID, toID string, entry domain.Entry) (bool, error) {
	args := m.Called(ctx, fromID, toID, entry)
	return args.Bool(0), args.Error(1)
}

// RecentEntries mock recent entries
func (m *MockLedgerRepository) RecentEntries(ctx context.Context, ownerID string, limit int) ([]domain.Entry, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Entry), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockAlertSink Mock AlertSink
type MockAlertSink struct {
	mock.Mock
}

// Raise mock raise alert
func (m *MockAlertSink) Raise(ctx context.Context, alert domain.OperationalAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

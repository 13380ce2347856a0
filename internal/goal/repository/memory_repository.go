package repository

import (
	"context"
	"sync"
	"time"

	"live_session_service/internal/goal/domain"
	errprocess "live_session_service/pkg/err"
)

type memoryGoalRepo struct {
	mu    sync.Mutex
	goals map[string]*domain.DonationGoal
}

// NewMemoryGoalRepository in process GoalRepository
func NewMemoryGoalRepository() GoalRepository {
	return &memoryGoalRepo{goals: make(map[string]*domain.DonationGoal)}
}

func (m *memoryGoalRepo) AutoMigrate() error { return nil }

func (m *memoryGoalRepo) CreateExclusive(_ context.Context, goal *domain.DonationGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.goals {
		if g.RoomID == goal.RoomID && g.IsOpen() {
			return errprocess.ErrGoalAlreadyActive
		}
	}
	m.goals[goal.ID] = goal.Clone()
	return nil
}

func (m *memoryGoalRepo) Get(_ context.Context, id string) (*domain.DonationGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.goals[id]
	if !ok {
		return nil, errprocess.ErrGoalNotFound
	}
	return g.Clone(), nil
}

func (m *memoryGoalRepo) Latest(_ context.Context, roomID string) (*domain.DonationGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.DonationGoal
	for _, g := range m.goals {
		if g.RoomID == roomID && (latest == nil || g.CreatedAt.After(latest.CreatedAt)) {
			latest = g
		}
	}
	if latest == nil {
		return nil, errprocess.ErrGoalNotFound
	}
	return latest.Clone(), nil
}

func (m *memoryGoalRepo) UpdateLocked(_ context.Context, id string, fn func(g *domain.DonationGoal) error) (*domain.DonationGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.goals[id]
	if !ok {
		return nil, errprocess.ErrGoalNotFound
	}
	g := stored.Clone()
	if err := fn(g); err != nil {
		return nil, err
	}
	g.Version++
	m.goals[id] = g.Clone()
	return g, nil
}

func (m *memoryGoalRepo) ListDueDecisions(_ context.Context, now time.Time) ([]domain.DonationGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.DonationGoal
	for _, g := range m.goals {
		if g.Status == domain.GoalReached && !g.WindowOpen(now) {
			out = append(out, *g.Clone())
		}
	}
	return out, nil
}

func (m *memoryGoalRepo) ListRefundPending(_ context.Context) ([]domain.DonationGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.DonationGoal
	for _, g := range m.goals {
		if len(g.Outstanding()) > 0 {
			out = append(out, *g.Clone())
		}
	}
	return out, nil
}

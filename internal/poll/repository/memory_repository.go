package repository

import (
	"context"
	"sync"
	"time"

	"live_session_service/internal/poll/domain"
	errprocess "live_session_service/pkg/err"
)

type memoryPollRepo struct {
	mu    sync.Mutex
	polls map[string]*domain.Poll
	votes map[string]map[string]domain.PollVote
}

// NewMemoryPollRepository in process PollRepository
func NewMemoryPollRepository() PollRepository {
	return &memoryPollRepo{
		polls: make(map[string]*domain.Poll),
		votes: make(map[string]map[string]domain.PollVote),
	}
}

func (m *memoryPollRepo) AutoMigrate() error { return nil }

func (m *memoryPollRepo) StartExclusive(_ context.Context, poll *domain.Poll, now time.Time) (*domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ended *domain.Poll
	for _, p := range m.polls {
		if p.RoomID != poll.RoomID || p.Status != domain.PollActive {
			continue
		}
		if p.IsOpen(now) {
			return nil, errprocess.ErrPollAlreadyActive
		}
		p.End(now)
		p.Version++
		ended = p.Clone()
	}
	m.polls[poll.ID] = poll.Clone()
	return ended, nil
}

func (m *memoryPollRepo) Get(_ context.Context, id string) (*domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.polls[id]
	if !ok {
		return nil, errprocess.ErrPollNotFound
	}
	return p.Clone(), nil
}

func (m *memoryPollRepo) Latest(_ context.Context, roomID string) (*domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.Poll
	for _, p := range m.polls {
		if p.RoomID == roomID && (latest == nil || p.CreatedAt.After(latest.CreatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, errprocess.ErrPollNotFound
	}
	return latest.Clone(), nil
}

func (m *memoryPollRepo) RecordVote(_ context.Context, vote domain.PollVote, fn func(p *domain.Poll) error) (*domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.polls[vote.PollID]
	if !ok {
		return nil, errprocess.ErrPollNotFound
	}
	p := stored.Clone()
	if err := fn(p); err != nil {
		return nil, err
	}
	if _, voted := m.votes[vote.PollID][vote.VoterID]; voted {
		return nil, errprocess.ErrAlreadyVoted
	}
	if m.votes[vote.PollID] == nil {
		m.votes[vote.PollID] = make(map[string]domain.PollVote)
	}
	m.votes[vote.PollID][vote.VoterID] = vote
	p.Version++
	m.polls[p.ID] = p.Clone()
	return p, nil
}

func (m *memoryPollRepo) UpdateLocked(_ context.Context, id string, fn func(p *domain.Poll) error) (*domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.polls[id]
	if !ok {
		return nil, errprocess.ErrPollNotFound
	}
	p := stored.Clone()
	if err := fn(p); err != nil {
		return nil, err
	}
	p.Version++
	m.polls[id] = p.Clone()
	return p, nil
}

func (m *memoryPollRepo) ListDue(_ context.Context, now time.Time) ([]domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Poll
	for _, p := range m.polls {
		if p.Expired(now) {
			out = append(out, *p.Clone())
		}
	}
	return out, nil
}

func (m *memoryPollRepo) VoteOf(_ context.Context, pollID, voterID string) (*domain.PollVote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[pollID][voterID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

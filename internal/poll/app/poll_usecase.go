package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/poll/domain"
	"live_session_service/internal/poll/repository"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Rooms room lookup
type Rooms interface {
	Get(ctx context.Context, roomID string) (*roomdomain.Room, error)
}

// Gate moderation check run before any mutation
type Gate interface {
	Check(ctx context.Context, roomID, userID string, action roomdomain.Action) error
}

// PollUseCase group votes, one running poll per room
type PollUseCase struct {
	repo        repository.PollRepository
	rooms       Rooms
	gate        Gate
	bus         eventdomain.Publisher
	maxDuration time.Duration
	now         func() time.Time
}

// NewPollUseCase create PollUseCase
func NewPollUseCase(repo repository.PollRepository, rooms Rooms, gate Gate, bus eventdomain.Publisher, cfg config.PollConfig) *PollUseCase {
	return &PollUseCase{
		repo:        repo,
		rooms:       rooms,
		gate:        gate,
		bus:         bus,
		maxDuration: cfg.MaxDuration,
		now:         time.Now,
	}
}

// StartPoll host opens a poll over exactly three candidates
func (uc *PollUseCase) StartPoll(ctx context.Context, hostID, roomID string, candidates []string, duration time.Duration) (*domain.Poll, error) {
	room, err := uc.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(hostID) {
		return nil, errprocess.ErrNotHost
	}
	if duration <= 0 {
		return nil, errprocess.New(errprocess.CodeInvalidRoomState, "a poll needs a positive duration")
	}
	if uc.maxDuration > 0 && duration > uc.maxDuration {
		return nil, errprocess.New(errprocess.CodeInvalidRoomState, fmt.Sprintf("a poll may last at most %s", uc.maxDuration))
	}

	now := uc.now()
	poll, err := domain.NewPoll(uuid.New().String(), roomID, hostID, candidates, now, duration)
	if err != nil {
		return nil, err
	}
	ended, err := uc.repo.StartExclusive(ctx, poll, now)
	if err != nil {
		return nil, err
	}
	if ended != nil {
		uc.publish(ctx, eventdomain.KindPollEnded, ended)
	}

	logger.Log.Info("poll started",
		zap.String("room_id", roomID),
		zap.String("poll_id", poll.ID),
		zap.Strings("candidates", poll.CandidateIDs),
		zap.Time("expires_at", poll.ExpiresAt),
	)
	uc.publish(ctx, eventdomain.KindPollStarted, poll)
	return poll, nil
}

// Vote one vote per voter, never overwritten
func (uc *PollUseCase) Vote(ctx context.Context, voterID, pollID, candidateID string) (*domain.Poll, error) {
	current, err := uc.repo.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := uc.gate.Check(ctx, current.RoomID, voterID, roomdomain.ActionVote); err != nil {
		return nil, err
	}

	now := uc.now()
	vote := domain.PollVote{PollID: pollID, VoterID: voterID, CandidateID: candidateID, CreatedAt: now}
	poll, err := uc.repo.RecordVote(ctx, vote, func(p *domain.Poll) error {
		return p.Cast(candidateID, now)
	})
	if err != nil {
		logger.Log.Debug("vote rejected",
			zap.String("poll_id", pollID),
			zap.String("voter_id", voterID),
			zap.Error(err),
		)
		return nil, err
	}
	uc.publish(ctx, eventdomain.KindPollTally, poll)
	return poll, nil
}

// CancelPoll host ends the poll now, freezing the tally
func (uc *PollUseCase) CancelPoll(ctx context.Context, hostID, pollID string) (*domain.Poll, error) {
	poll, err := uc.repo.UpdateLocked(ctx, pollID, func(p *domain.Poll) error {
		if p.HostID != hostID {
			return errprocess.ErrNotHost
		}
		if !p.End(uc.now()) {
			return errprocess.ErrPollClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, eventdomain.KindPollEnded, poll)
	return poll, nil
}

// FinalizeDue end every poll past its deadline, returns how many were ended
func (uc *PollUseCase) FinalizeDue(ctx context.Context, now time.Time) (int, error) {
	due, err := uc.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, candidate := range due {
		poll, err := uc.repo.UpdateLocked(ctx, candidate.ID, func(p *domain.Poll) error {
			if !p.Expired(now) {
				return errNotDue
			}
			p.End(now)
			return nil
		})
		if errors.Is(err, errNotDue) {
			continue
		}
		if err != nil {
			logger.Log.Warn("finalize poll", zap.String("poll_id", candidate.ID), zap.Error(err))
			continue
		}
		ended++
		uc.publish(ctx, eventdomain.KindPollEnded, poll)
	}
	return ended, nil
}

// Get poll by id
func (uc *PollUseCase) Get(ctx context.Context, pollID string) (*domain.Poll, error) {
	return uc.repo.Get(ctx, pollID)
}

// Latest newest poll of the room, nil when the room never had one
func (uc *PollUseCase) Latest(ctx context.Context, roomID string) (*domain.Poll, error) {
	poll, err := uc.repo.Latest(ctx, roomID)
	if errors.Is(err, errprocess.ErrPollNotFound) {
		return nil, nil
	}
	return poll, err
}

// VoteOf the voter's ballot, nil when not voted
func (uc *PollUseCase) VoteOf(ctx context.Context, pollID, voterID string) (*domain.PollVote, error) {
	return uc.repo.VoteOf(ctx, pollID, voterID)
}

func (uc *PollUseCase) publish(ctx context.Context, kind eventdomain.EventKind, p *domain.Poll) {
	if kind == eventdomain.KindPollEnded {
		logger.Log.Info("poll ended",
			zap.String("poll_id", p.ID),
			zap.Strings("leaders", p.Leaders()),
			zap.Int64("total", p.Total()),
		)
	}
	uc.bus.Emit(ctx, p.RoomID, kind, eventdomain.StreamPoll(p.ID), p.Version, p.View())
}

var errNotDue = errprocess.New(errprocess.CodePollClosed, "not due")

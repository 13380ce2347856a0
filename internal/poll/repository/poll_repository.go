package repository

import (
	"context"
	"errors"
	"time"

	"live_session_service/internal/poll/domain"
	errprocess "live_session_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PollRepository poll storage.
// StartExclusive inserts poll under a room scoped lock: a running poll of the
// room rejects it, an expired-but-active one is ended first and returned.
// RecordVote applies fn to the locked poll and stores the vote in the same
// step, a second vote of the same voter fails with AlreadyVoted.
type PollRepository interface {
	AutoMigrate() error
	StartExclusive(ctx context.Context, poll *domain.Poll, now time.Time) (*domain.Poll, error)
	Get(ctx context.Context, id string) (*domain.Poll, error)
	Latest(ctx context.Context, roomID string) (*domain.Poll, error)
	RecordVote(ctx context.Context, vote domain.PollVote, fn func(p *domain.Poll) error) (*domain.Poll, error)
	UpdateLocked(ctx context.Context, id string, fn func(p *domain.Poll) error) (*domain.Poll, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Poll, error)
	VoteOf(ctx context.Context, pollID, voterID string) (*domain.PollVote, error)
}

type pollRepo struct {
	db *gorm.DB
}

// NewPollRepository create gorm PollRepository
func NewPollRepository(db *gorm.DB) PollRepository {
	return &pollRepo{db: db}
}

func (r *pollRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Poll{}, &domain.PollVote{})
}

func (r *pollRepo) StartExclusive(ctx context.Context, poll *domain.Poll, now time.Time) (*domain.Poll, error) {
	var ended *domain.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 以 room id 為 key 的 advisory lock, transaction 結束自動釋放
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "poll:"+poll.RoomID).Error; err != nil {
			return err
		}

		var active domain.Poll
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_id = ? AND status = ?", poll.RoomID, domain.PollActive).
			First(&active).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		case active.IsOpen(now):
			return errprocess.ErrPollAlreadyActive
		default:
			active.End(now)
			active.Version++
			if err := tx.Save(&active).Error; err != nil {
				return err
			}
			ended = &active
		}
		return tx.Create(poll).Error
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

func (r *pollRepo) Get(ctx context.Context, id string) (*domain.Poll, error) {
	var p domain.Poll
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrPollNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *pollRepo) Latest(ctx context.Context, roomID string) (*domain.Poll, error) {
	var p domain.Poll
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at DESC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrPollNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *pollRepo) lockPoll(tx *gorm.DB, id string) (*domain.Poll, error) {
	var p domain.Poll
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrPollNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *pollRepo) RecordVote(ctx context.Context, vote domain.PollVote, fn func(p *domain.Poll) error) (*domain.Poll, error) {
	var out *domain.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := r.lockPoll(tx, vote.PollID)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		// composite primary key 保證一人一票, 重複投票整筆 rollback
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errprocess.ErrAlreadyVoted
			}
			return err
		}
		p.Version++
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (r *pollRepo) UpdateLocked(ctx context.Context, id string, fn func(p *domain.Poll) error) (*domain.Poll, error) {
	var out *domain.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := r.lockPoll(tx, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.Version++
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (r *pollRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Poll, error) {
	var polls []domain.Poll
	err := r.db.WithContext(ctx).Where("status = ? AND expires_at <= ?", domain.PollActive, now).Find(&polls).Error
	return polls, err
}

func (r *pollRepo) VoteOf(ctx context.Context, pollID, voterID string) (*domain.PollVote, error) {
	var v domain.PollVote
	err := r.db.WithContext(ctx).First(&v, "poll_id = ? AND voter_id = ?", pollID, voterID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

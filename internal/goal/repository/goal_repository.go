package repository

import (
	"context"
	"errors"
	"time"

	"live_session_service/internal/goal/domain"
	errprocess "live_session_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GoalRepository donation goal storage, contributions are loaded and saved with their goal
type GoalRepository interface {
	AutoMigrate() error
	CreateExclusive(ctx context.Context, goal *domain.DonationGoal) error
	Get(ctx context.Context, id string) (*domain.DonationGoal, error)
	Latest(ctx context.Context, roomID string) (*domain.DonationGoal, error)
	UpdateLocked(ctx context.Context, id string, fn func(g *domain.DonationGoal) error) (*domain.DonationGoal, error)
	ListDueDecisions(ctx context.Context, now time.Time) ([]domain.DonationGoal, error)
	ListRefundPending(ctx context.Context) ([]domain.DonationGoal, error)
}

type goalRepo struct {
	db *gorm.DB
}

// NewGoalRepository create gorm GoalRepository
func NewGoalRepository(db *gorm.DB) GoalRepository {
	return &goalRepo{db: db}
}

func (r *goalRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.DonationGoal{}, &domain.Contribution{})
}

// CreateExclusive 一個房間同時只能有一個未結束的 goal
func (r *goalRepo) CreateExclusive(ctx context.Context, goal *domain.DonationGoal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "goal:"+goal.RoomID).Error; err != nil {
			return err
		}
		var open int64
		err := tx.Model(&domain.DonationGoal{}).
			Where("room_id = ? AND status IN ?", goal.RoomID, []domain.GoalStatus{domain.GoalActive, domain.GoalReached}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return errprocess.ErrGoalAlreadyActive
		}
		return tx.Omit(clause.Associations).Create(goal).Error
	})
}

func (r *goalRepo) Get(ctx context.Context, id string) (*domain.DonationGoal, error) {
	var g domain.DonationGoal
	err := r.db.WithContext(ctx).Preload("Contributions", orderContributions).First(&g, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrGoalNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *goalRepo) Latest(ctx context.Context, roomID string) (*domain.DonationGoal, error) {
	var g domain.DonationGoal
	err := r.db.WithContext(ctx).Preload("Contributions", orderContributions).
		Where("room_id = ?", roomID).Order("created_at DESC").First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrGoalNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *goalRepo) UpdateLocked(ctx context.Context, id string, fn func(g *domain.DonationGoal) error) (*domain.DonationGoal, error) {
	var g domain.DonationGoal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&g, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errprocess.ErrGoalNotFound
			}
			return err
		}
		if err := tx.Where("goal_id = ?", id).Order("created_at").Find(&g.Contributions).Error; err != nil {
			return err
		}
		if err := fn(&g); err != nil {
			return err
		}
		g.Version++
		if err := tx.Omit(clause.Associations).Save(&g).Error; err != nil {
			return err
		}
		if len(g.Contributions) == 0 {
			return nil
		}
		// 新增與退款狀態一起 upsert
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&g.Contributions).Error
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *goalRepo) ListDueDecisions(ctx context.Context, now time.Time) ([]domain.DonationGoal, error) {
	var goals []domain.DonationGoal
	err := r.db.WithContext(ctx).
		Where("status = ? AND decision_deadline <= ?", domain.GoalReached, now).
		Find(&goals).Error
	return goals, err
}

func (r *goalRepo) ListRefundPending(ctx context.Context) ([]domain.DonationGoal, error) {
	var goals []domain.DonationGoal
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.GoalStatus{domain.GoalRejected, domain.GoalExpired}).
		Where("EXISTS (SELECT 1 FROM contributions c WHERE c.goal_id = donation_goals.id AND c.refunded_at IS NULL)").
		Find(&goals).Error
	return goals, err
}

func orderContributions(db *gorm.DB) *gorm.DB {
	return db.Order("created_at")
}

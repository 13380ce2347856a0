package repository

import (
	"context"
	"errors"
	"time"

	"live_session_service/internal/room/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModerationRepository (room, user) moderation records.
// Get returns nil, nil when the user has no live record.
// UpsertLocked creates the record when missing (exists=false) and locks it,
// Remove soft deletes it when fn accepts the locked record; both bump Version.
// A ban survives removal.
type ModerationRepository interface {
	AutoMigrate() error
	Get(ctx context.Context, roomID, userID string) (*domain.ModerationRecord, error)
	UpsertLocked(ctx context.Context, roomID, userID string, fn func(rec *domain.ModerationRecord, exists bool) error) (*domain.ModerationRecord, error)
	Remove(ctx context.Context, roomID, userID string, fn func(rec *domain.ModerationRecord) error) (*domain.ModerationRecord, error)
	ListByStatus(ctx context.Context, roomID string, status domain.MembershipStatus) ([]domain.ModerationRecord, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

type moderationRepo struct {
	db *gorm.DB
}

// NewModerationRepository create gorm ModerationRepository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepo{db: db}
}

func (r *moderationRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.ModerationRecord{})
}

func (r *moderationRepo) Get(ctx context.Context, roomID, userID string) (*domain.ModerationRecord, error) {
	var rec domain.ModerationRecord
	err := r.db.WithContext(ctx).First(&rec, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// lock 先 insert ... on conflict do nothing 讓 row 一定存在, 再 FOR UPDATE 上鎖
func lock(tx *gorm.DB, roomID, userID string) (*domain.ModerationRecord, error) {
	seed := domain.ModerationRecord{RoomID: roomID, UserID: userID, UpdatedAt: time.Now()}
	if err := tx.Unscoped().Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var rec domain.ModerationRecord
	err := tx.Unscoped().Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rec, "room_id = ? AND user_id = ?", roomID, userID).Error
	return &rec, err
}

func (r *moderationRepo) UpsertLocked(ctx context.Context, roomID, userID string, fn func(rec *domain.ModerationRecord, exists bool) error) (*domain.ModerationRecord, error) {
	var out *domain.ModerationRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lock(tx, roomID, userID)
		if err != nil {
			return err
		}
		exists := rec.Version > 0 && !rec.Removed()
		if !exists {
			// 被拒絕過的紀錄重新開始, Version 與 ban 延續
			rec.IsMuted, rec.MembershipStatus = false, ""
			rec.DeletedAt = gorm.DeletedAt{}
		}
		if err := fn(rec, exists); err != nil {
			return err
		}
		rec.Version++
		rec.UpdatedAt = time.Now()
		if err := tx.Unscoped().Save(rec).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (r *moderationRepo) Remove(ctx context.Context, roomID, userID string, fn func(rec *domain.ModerationRecord) error) (*domain.ModerationRecord, error) {
	var out *domain.ModerationRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lock(tx, roomID, userID)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		now := time.Now()
		rec.Version++
		rec.UpdatedAt = now
		rec.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}
		if err := tx.Unscoped().Save(rec).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (r *moderationRepo) ListByStatus(ctx context.Context, roomID string, status domain.MembershipStatus) ([]domain.ModerationRecord, error) {
	var recs []domain.ModerationRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND membership_status = ?", roomID, status).
		Order("updated_at").
		Find(&recs).Error
	return recs, err
}

func (r *moderationRepo) DeleteRoom(ctx context.Context, roomID string) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&domain.ModerationRecord{}, "room_id = ?", roomID).Error
}

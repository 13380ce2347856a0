package repository

import (
	"context"
	"errors"
	"time"

	"live_session_service/internal/room/domain"
	errprocess "live_session_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepository room storage. UpdateLocked runs fn against the row locked for
// update, saves it and bumps Version; an error from fn saves nothing.
type RoomRepository interface {
	AutoMigrate() error
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	UpdateLocked(ctx context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, error)
	Delete(ctx context.Context, id string) error
	ListByLifecycle(ctx context.Context, lifecycle domain.Lifecycle) ([]domain.Room, error)
	ListDueAuctions(ctx context.Context, now time.Time) ([]domain.Room, error)
}

type roomRepo struct {
	db *gorm.DB
}

// NewRoomRepository create gorm RoomRepository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

// AutoMigrate 依照 Room 模型建立或更新 rooms 表
func (r *roomRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Room{})
}

func (r *roomRepo) Create(ctx context.Context, room *domain.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepo) Get(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// UpdateLocked SELECT ... FOR UPDATE, 同一房間的寫入在 transaction 內排隊
func (r *roomRepo) UpdateLocked(ctx context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errprocess.ErrRoomNotFound
			}
			return err
		}
		if err := fn(&room); err != nil {
			return err
		}
		room.Version++
		return tx.Save(&room).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Room{}, "id = ?", id).Error
}

func (r *roomRepo) ListByLifecycle(ctx context.Context, lifecycle domain.Lifecycle) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := r.db.WithContext(ctx).Where("lifecycle = ?", lifecycle).Order("created_at DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListDueAuctions open auctions whose end time has passed
func (r *roomRepo) ListDueAuctions(ctx context.Context, now time.Time) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("auction_status = ? AND auction_end_time <= ?", domain.AuctionOpen, now).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"live_session_service/internal/gift/domain"
	errprocess "live_session_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GiftRepository gift catalog and sent gifts
type GiftRepository interface {
	AutoMigrate() error
	SeedCatalog(ctx context.Context, kinds []domain.GiftKind) error
	Kind(ctx context.Context, id string) (*domain.GiftKind, error)
	Catalog(ctx context.Context) ([]domain.GiftKind, error)
	Record(ctx context.Context, gift *domain.Gift) error
	ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.Gift, error)
}

type giftRepo struct {
	db *gorm.DB
}

// NewGiftRepository create gorm GiftRepository
func NewGiftRepository(db *gorm.DB) GiftRepository {
	return &giftRepo{db: db}
}

func (r *giftRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.GiftKind{}, &domain.Gift{})
}

// SeedCatalog upsert 設定檔中的禮物, 價格以設定為準
func (r *giftRepo) SeedCatalog(ctx context.Context, kinds []domain.GiftKind) error {
	if len(kinds) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "icon_key", "price"}),
	}).Create(&kinds).Error
}

func (r *giftRepo) Kind(ctx context.Context, id string) (*domain.GiftKind, error) {
	var k domain.GiftKind
	if err := r.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.ErrUnknownGift
		}
		return nil, err
	}
	return &k, nil
}

func (r *giftRepo) Catalog(ctx context.Context) ([]domain.GiftKind, error) {
	var kinds []domain.GiftKind
	err := r.db.WithContext(ctx).Order("price").Find(&kinds).Error
	return kinds, err
}

func (r *giftRepo) Record(ctx context.Context, gift *domain.Gift) error {
	return r.db.WithContext(ctx).Create(gift).Error
}

func (r *giftRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.Gift, error) {
	var gifts []domain.Gift
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at DESC").Limit(limit).Find(&gifts).Error
	return gifts, err
}

type memoryGiftRepo struct {
	mu    sync.Mutex
	kinds map[string]domain.GiftKind
	gifts []domain.Gift
}

// NewMemoryGiftRepository in process GiftRepository
func NewMemoryGiftRepository() GiftRepository {
	return &memoryGiftRepo{kinds: make(map[string]domain.GiftKind)}
}

func (m *memoryGiftRepo) AutoMigrate() error { return nil }

func (m *memoryGiftRepo) SeedCatalog(_ context.Context, kinds []domain.GiftKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range kinds {
		m.kinds[k.ID] = k
	}
	return nil
}

func (m *memoryGiftRepo) Kind(_ context.Context, id string) (*domain.GiftKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kinds[id]
	if !ok {
		return nil, errprocess.ErrUnknownGift
	}
	return &k, nil
}

func (m *memoryGiftRepo) Catalog(_ context.Context) ([]domain.GiftKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GiftKind, 0, len(m.kinds))
	for _, k := range m.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryGiftRepo) Record(_ context.Context, gift *domain.Gift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gifts = append(m.gifts, *gift)
	return nil
}

func (m *memoryGiftRepo) ListByRoom(_ context.Context, roomID string, limit int) ([]domain.Gift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Gift
	for i := len(m.gifts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.gifts[i].RoomID == roomID {
			out = append(out, m.gifts[i])
		}
	}
	return out, nil
}

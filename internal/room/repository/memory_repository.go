package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"live_session_service/internal/room/domain"
	errprocess "live_session_service/pkg/err"

	"gorm.io/gorm"
)

type memoryRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

// NewMemoryRoomRepository in process RoomRepository
func NewMemoryRoomRepository() RoomRepository {
	return &memoryRoomRepo{rooms: make(map[string]*domain.Room)}
}

func (m *memoryRoomRepo) AutoMigrate() error { return nil }

func (m *memoryRoomRepo) Create(_ context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	cp := *room
	m.rooms[room.ID] = &cp
	return nil
}

func (m *memoryRoomRepo) Get(_ context.Context, id string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, errprocess.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRoomRepo) UpdateLocked(_ context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, errprocess.ErrRoomNotFound
	}
	cp := *r
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.Version++
	cp.UpdatedAt = time.Now()
	stored := cp
	m.rooms[id] = &stored
	return &cp, nil
}

func (m *memoryRoomRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	return nil
}

func (m *memoryRoomRepo) ListByLifecycle(_ context.Context, lifecycle domain.Lifecycle) ([]domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Room
	for _, r := range m.rooms {
		if r.Lifecycle == lifecycle {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRoomRepo) ListDueAuctions(_ context.Context, now time.Time) ([]domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Room
	for _, r := range m.rooms {
		if r.AuctionStatus == domain.AuctionOpen && !r.AuctionEndTime.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

type moderationKey struct {
	roomID, userID string
}

type memoryModerationRepo struct {
	mu      sync.Mutex
	records map[moderationKey]*domain.ModerationRecord
}

// NewMemoryModerationRepository in process ModerationRepository
func NewMemoryModerationRepository() ModerationRepository {
	return &memoryModerationRepo{records: make(map[moderationKey]*domain.ModerationRecord)}
}

func (m *memoryModerationRepo) AutoMigrate() error { return nil }

func (m *memoryModerationRepo) Get(_ context.Context, roomID, userID string) (*domain.ModerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[moderationKey{roomID, userID}]
	if !ok || rec.Removed() {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryModerationRepo) UpsertLocked(_ context.Context, roomID, userID string, fn func(rec *domain.ModerationRecord, exists bool) error) (*domain.ModerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := moderationKey{roomID, userID}
	var cp domain.ModerationRecord
	stored, exists := m.records[key]
	if exists && !stored.Removed() {
		cp = *stored
	} else {
		cp = domain.ModerationRecord{RoomID: roomID, UserID: userID}
		if exists {
			cp.Version = stored.Version
			cp.IsBanned = stored.IsBanned
		}
		exists = false
	}

	if err := fn(&cp, exists); err != nil {
		return nil, err
	}
	cp.Version++
	cp.UpdatedAt = time.Now()
	saved := cp
	m.records[key] = &saved
	return &cp, nil
}

func (m *memoryModerationRepo) Remove(_ context.Context, roomID, userID string, fn func(rec *domain.ModerationRecord) error) (*domain.ModerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := moderationKey{roomID, userID}
	cp := domain.ModerationRecord{RoomID: roomID, UserID: userID}
	if stored, ok := m.records[key]; ok {
		cp = *stored
	}
	if err := fn(&cp); err != nil {
		return nil, err
	}
	now := time.Now()
	cp.Version++
	cp.UpdatedAt = now
	cp.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}
	saved := cp
	m.records[key] = &saved
	return &cp, nil
}

func (m *memoryModerationRepo) ListByStatus(_ context.Context, roomID string, status domain.MembershipStatus) ([]domain.ModerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ModerationRecord
	for key, rec := range m.records {
		if key.roomID == roomID && !rec.Removed() && rec.MembershipStatus == status {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryModerationRepo) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.records {
		if key.roomID == roomID {
			delete(m.records, key)
		}
	}
	return nil
}

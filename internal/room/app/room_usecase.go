package app

import (
	"context"
	"strings"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/room/domain"
	"live_session_service/internal/room/repository"
	"live_session_service/pkg/encrypt"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomUseCase room lifecycle and counters
type RoomUseCase struct {
	rooms      repository.RoomRepository
	records    repository.ModerationRepository
	moderation *ModerationUseCase
	bus        eventdomain.Publisher
}

// NewRoomUseCase create RoomUseCase
func NewRoomUseCase(rooms repository.RoomRepository, records repository.ModerationRepository, moderation *ModerationUseCase, bus eventdomain.Publisher) *RoomUseCase {
	return &RoomUseCase{rooms: rooms, records: records, moderation: moderation, bus: bus}
}

// StartStream create a scheduled room owned by hostID
func (uc *RoomUseCase) StartStream(ctx context.Context, hostID string, req domain.StartStreamReq) (*domain.Room, error) {
	if hostID == "" {
		return nil, errprocess.ErrNotHost
	}
	if req.Visibility == "" {
		req.Visibility = domain.VisibilityPublic
	}
	if req.JoinMode == "" {
		req.JoinMode = domain.JoinModeOpen
		if req.Visibility == domain.VisibilityPrivate {
			req.JoinMode = domain.JoinModeApprove
		}
	}
	switch req.JoinMode {
	case domain.JoinModeOpen, domain.JoinModeApprove, domain.JoinModePassword:
	default:
		return nil, errprocess.New(errprocess.CodeInvalidRoomState, "unknown join mode")
	}

	room := &domain.Room{
		ID:            uuid.New().String(),
		HostID:        hostID,
		Title:         strings.TrimSpace(req.Title),
		Lifecycle:     domain.LifecycleScheduled,
		Visibility:    req.Visibility,
		JoinMode:      req.JoinMode,
		ProductSetID:  req.ProductSetID,
		AuctionStatus: domain.AuctionInactive,
		Version:       1,
		CreatedAt:     time.Now(),
	}
	if req.JoinMode == domain.JoinModePassword {
		hash, err := encrypt.HashPasscode(req.Passcode)
		if err != nil {
			return nil, errprocess.New(errprocess.CodeInvalidRoomState, err.Error())
		}
		room.PasscodeHash = hash
	}

	if err := uc.rooms.Create(ctx, room); err != nil {
		return nil, err
	}
	logger.Log.Info("room created", zap.String("room_id", room.ID), zap.String("host_id", hostID))
	return room, nil
}

// GoLive scheduled → live, host only
func (uc *RoomUseCase) GoLive(ctx context.Context, hostID, roomID string) (*domain.Room, error) {
	room, err := uc.rooms.UpdateLocked(ctx, roomID, func(r *domain.Room) error {
		if !r.IsHost(hostID) {
			return errprocess.ErrNotHost
		}
		if r.Lifecycle != domain.LifecycleScheduled {
			return errprocess.ErrInvalidRoomState
		}
		r.Lifecycle = domain.LifecycleLive
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.Publish(ctx, eventdomain.KindRoomUpdated, room)
	return room, nil
}

// EndStream host ends the stream. The ended snapshot is published before the
// room and its moderation records are deleted.
func (uc *RoomUseCase) EndStream(ctx context.Context, hostID, roomID string) error {
	room, err := uc.rooms.UpdateLocked(ctx, roomID, func(r *domain.Room) error {
		if !r.IsHost(hostID) {
			return errprocess.ErrNotHost
		}
		r.Lifecycle = domain.LifecycleEnded
		if r.AuctionStatus == domain.AuctionOpen {
			r.AuctionStatus = domain.AuctionClosed
		}
		return nil
	})
	if err != nil {
		return err
	}
	uc.Publish(ctx, eventdomain.KindRoomEnded, room)

	if err := uc.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := uc.records.DeleteRoom(ctx, roomID); err != nil {
		logger.Log.Warn("delete moderation records", zap.String("room_id", roomID), zap.Error(err))
	}
	logger.Log.Info("room ended", zap.String("room_id", roomID))
	return nil
}

// Get current room
func (uc *RoomUseCase) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	return uc.rooms.Get(ctx, roomID)
}

// LiveRooms rooms currently on air
func (uc *RoomUseCase) LiveRooms(ctx context.Context) ([]domain.Room, error) {
	return uc.rooms.ListByLifecycle(ctx, domain.LifecycleLive)
}

// Enter a viewer joins, viewer count +1
func (uc *RoomUseCase) Enter(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	if err := uc.moderation.Check(ctx, roomID, userID, domain.ActionJoin); err != nil {
		return nil, err
	}
	return uc.count(ctx, roomID, func(r *domain.Room) { r.ViewerCount++ })
}

// Leave a viewer leaves, viewer count never goes below zero
func (uc *RoomUseCase) Leave(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	return uc.count(ctx, roomID, func(r *domain.Room) {
		if r.ViewerCount > 0 {
			r.ViewerCount--
		}
	})
}

// Like like count +1
func (uc *RoomUseCase) Like(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	if err := uc.moderation.Check(ctx, roomID, userID, domain.ActionLike); err != nil {
		return nil, err
	}
	return uc.count(ctx, roomID, func(r *domain.Room) { r.LikeCount++ })
}

func (uc *RoomUseCase) count(ctx context.Context, roomID string, apply func(r *domain.Room)) (*domain.Room, error) {
	room, err := uc.rooms.UpdateLocked(ctx, roomID, func(r *domain.Room) error {
		if r.Lifecycle == domain.LifecycleEnded {
			return errprocess.ErrInvalidRoomState
		}
		apply(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.Publish(ctx, eventdomain.KindRoomUpdated, room)
	return room, nil
}

// Publish full room snapshot on the room stream
func (uc *RoomUseCase) Publish(ctx context.Context, kind eventdomain.EventKind, room *domain.Room) {
	uc.bus.Emit(ctx, room.ID, kind, eventdomain.StreamRoom, room.Version, room)
}

package app

import (
	"context"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/room/domain"
	"live_session_service/internal/room/repository"
	"live_session_service/pkg/encrypt"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"go.uber.org/zap"
)

// ModerationUseCase the moderation registry. Check is called by every inbound
// room action before anything is mutated and always reads the stored record,
// so a ban applies to the very next intent.
type ModerationUseCase struct {
	rooms   repository.RoomRepository
	records repository.ModerationRepository
	bus     eventdomain.Publisher
}

// NewModerationUseCase create ModerationUseCase
func NewModerationUseCase(rooms repository.RoomRepository, records repository.ModerationRepository, bus eventdomain.Publisher) *ModerationUseCase {
	return &ModerationUseCase{rooms: rooms, records: records, bus: bus}
}

// Check gate an inbound action of userID in roomID
func (uc *ModerationUseCase) Check(ctx context.Context, roomID, userID string, action domain.Action) error {
	room, err := uc.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	return uc.check(ctx, room, userID, action)
}

func (uc *ModerationUseCase) check(ctx context.Context, room *domain.Room, userID string, action domain.Action) error {
	if room.IsHost(userID) {
		return nil
	}
	rec, err := uc.records.Get(ctx, room.ID, userID)
	if err != nil {
		return err
	}
	if rec != nil && rec.IsBanned {
		return errprocess.ErrBanned
	}
	if action == domain.ActionChat && rec != nil && rec.IsMuted {
		return errprocess.ErrMuted
	}
	if action != domain.ActionJoin && room.RequiresMembership() && !rec.Approved() {
		return errprocess.ErrMembershipPending
	}
	return nil
}

// Record viewer's own record, nil when none exists. The host's membership is implicit.
func (uc *ModerationUseCase) Record(ctx context.Context, roomID, userID string) (*domain.ModerationRecord, error) {
	return uc.records.Get(ctx, roomID, userID)
}

// Pending membership requests waiting for the host
func (uc *ModerationUseCase) Pending(ctx context.Context, hostID, roomID string) ([]domain.ModerationRecord, error) {
	if _, err := uc.hostRoom(ctx, hostID, roomID); err != nil {
		return nil, err
	}
	return uc.records.ListByStatus(ctx, roomID, domain.MembershipPending)
}

// RequestJoin first contact of a user with a room.
// Open public rooms approve automatically, password rooms approve on a matching
// passcode, everything else creates a pending request for the host.
func (uc *ModerationUseCase) RequestJoin(ctx context.Context, userID, roomID, passcode string) (*domain.ModerationRecord, error) {
	room, err := uc.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsHost(userID) {
		return &domain.ModerationRecord{RoomID: roomID, UserID: userID, MembershipStatus: domain.MembershipApproved}, nil
	}

	current, err := uc.records.Get(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if current.IsBanned {
			return nil, errprocess.ErrBanned
		}
		if current.Approved() {
			return current, nil
		}
	}

	status := domain.MembershipApproved
	switch {
	case !room.RequiresMembership():
	case room.JoinMode == domain.JoinModePassword:
		if err := encrypt.CheckPasscode(room.PasscodeHash, passcode); err != nil {
			return nil, errprocess.ErrWrongPasscode
		}
	default:
		status = domain.MembershipPending
	}

	if current != nil && current.MembershipStatus == status {
		return current, nil
	}

	rec, err := uc.records.UpsertLocked(ctx, roomID, userID, func(rec *domain.ModerationRecord, _ bool) error {
		if rec.IsBanned {
			return errprocess.ErrBanned
		}
		rec.MembershipStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, rec)
	return rec, nil
}

// Approve host grants membership
func (uc *ModerationUseCase) Approve(ctx context.Context, hostID, roomID, userID string) (*domain.ModerationRecord, error) {
	if _, err := uc.hostRoom(ctx, hostID, roomID); err != nil {
		return nil, err
	}
	rec, err := uc.records.UpsertLocked(ctx, roomID, userID, func(rec *domain.ModerationRecord, _ bool) error {
		rec.MembershipStatus = domain.MembershipApproved
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, rec)
	return rec, nil
}

// errNoPendingRequest Reject only applies to a pending, not banned request
var errNoPendingRequest = errprocess.New(errprocess.CodeForbidden, "there is no membership request from that user")

// Reject host declines a pending membership request, the record is removed.
// Banned and approved records are left alone.
func (uc *ModerationUseCase) Reject(ctx context.Context, hostID, roomID, userID string) (*domain.ModerationRecord, error) {
	if _, err := uc.hostRoom(ctx, hostID, roomID); err != nil {
		return nil, err
	}
	rec, err := uc.records.Remove(ctx, roomID, userID, func(rec *domain.ModerationRecord) error {
		if rec.Version == 0 || rec.Removed() || rec.IsBanned || rec.MembershipStatus != domain.MembershipPending {
			return errNoPendingRequest
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, rec)
	return rec, nil
}

// SetMuted host mutes or unmutes a member, only chat is affected
func (uc *ModerationUseCase) SetMuted(ctx context.Context, callerID, roomID, userID string, muted bool) (*domain.ModerationRecord, error) {
	return uc.moderate(ctx, callerID, roomID, userID, func(rec *domain.ModerationRecord) {
		rec.IsMuted = muted
	})
}

// SetBanned host bans or unbans a member, a banned member is rejected on every action
func (uc *ModerationUseCase) SetBanned(ctx context.Context, callerID, roomID, userID string, banned bool) (*domain.ModerationRecord, error) {
	return uc.moderate(ctx, callerID, roomID, userID, func(rec *domain.ModerationRecord) {
		rec.IsBanned = banned
	})
}

func (uc *ModerationUseCase) moderate(ctx context.Context, callerID, roomID, userID string, apply func(rec *domain.ModerationRecord)) (*domain.ModerationRecord, error) {
	room, err := uc.hostRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, err
	}
	if userID == "" || room.IsHost(userID) {
		return nil, errprocess.ErrSelfModeration
	}

	rec, err := uc.records.UpsertLocked(ctx, roomID, userID, func(rec *domain.ModerationRecord, exists bool) error {
		if !exists {
			rec.MembershipStatus = domain.MembershipPending
			if !room.RequiresMembership() {
				rec.MembershipStatus = domain.MembershipApproved
			}
		}
		apply(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("moderation updated",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.Bool("muted", rec.IsMuted),
		zap.Bool("banned", rec.IsBanned),
	)
	uc.publish(ctx, rec)
	return rec, nil
}

func (uc *ModerationUseCase) hostRoom(ctx context.Context, callerID, roomID string) (*domain.Room, error) {
	room, err := uc.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(callerID) {
		return nil, errprocess.ErrNotHost
	}
	return room, nil
}

func (uc *ModerationUseCase) publish(ctx context.Context, rec *domain.ModerationRecord) {
	uc.bus.Emit(ctx, rec.RoomID, eventdomain.KindModerationUpdated, eventdomain.StreamModeration(rec.UserID), rec.Version, rec.View())
}

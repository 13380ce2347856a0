package app

import (
	"context"
	"fmt"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/gift/domain"
	"live_session_service/internal/gift/repository"
	ledgerdomain "live_session_service/internal/ledger/domain"
	notifydomain "live_session_service/internal/notify/domain"
	roomdomain "live_session_service/internal/room/domain"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger money operations a gift needs
type Ledger interface {
	Balance(ctx context.Context, ownerID string) (int64, error)
	DebitThenCredit(ctx context.Context, fromID, toID string, amount int64, kind ledgerdomain.EntryKind, reference string) error
	Reverse(ctx context.Context, toID, fromID string, amount int64, reference string) error
}

// Rooms room lookup and moderation gate
type Rooms interface {
	Get(ctx context.Context, roomID string) (*roomdomain.Room, error)
}

// Gate moderation check run before any mutation
type Gate interface {
	Check(ctx context.Context, roomID, userID string, action roomdomain.Action) error
}

// GiftUseCase turns a paid gift into one ledger transfer plus a room broadcast
type GiftUseCase struct {
	repo     repository.GiftRepository
	icons    repository.IconResolver
	ledger   Ledger
	rooms    Rooms
	gate     Gate
	bus      eventdomain.Publisher
	notifier notifydomain.Notifier
}

// NewGiftUseCase create GiftUseCase
func NewGiftUseCase(repo repository.GiftRepository, icons repository.IconResolver, ledger Ledger, rooms Rooms, gate Gate, bus eventdomain.Publisher, notifier notifydomain.Notifier) *GiftUseCase {
	if icons == nil {
		icons = repository.NewRawIconResolver()
	}
	return &GiftUseCase{repo: repo, icons: icons, ledger: ledger, rooms: rooms, gate: gate, bus: bus, notifier: notifier}
}

// Catalog gift kinds with resolved icon urls
func (uc *GiftUseCase) Catalog(ctx context.Context) ([]domain.GiftKind, error) {
	kinds, err := uc.repo.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	for i := range kinds {
		kinds[i].IconKey = uc.icons.IconURL(ctx, kinds[i].IconKey)
	}
	return kinds, nil
}

// Recent latest gifts of a room
func (uc *GiftUseCase) Recent(ctx context.Context, roomID string, limit int) ([]domain.Gift, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.repo.ListByRoom(ctx, roomID, limit)
}

// SendGift charge the sender the fixed price of the kind, credit the receiver
// (the host when none is given), record the gift, then celebrate in the room.
// No coins are left in limbo: a failed credit is compensated by the ledger and
// a failed record is reversed before the error is returned.
func (uc *GiftUseCase) SendGift(ctx context.Context, req domain.SendGiftReq) (*domain.Gift, error) {
	if err := uc.gate.Check(ctx, req.RoomID, req.SenderID, roomdomain.ActionGift); err != nil {
		return nil, err
	}
	room, err := uc.rooms.Get(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	kind, err := uc.repo.Kind(ctx, req.KindID)
	if err != nil {
		return nil, err
	}

	receiver := req.ReceiverID
	if receiver == "" {
		receiver = room.HostID
	}
	if receiver == req.SenderID {
		return nil, errprocess.ErrSelfTransfer
	}

	balance, err := uc.ledger.Balance(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	if balance < kind.Price {
		return nil, errprocess.ErrInsufficientBalance
	}

	gift := &domain.Gift{
		ID:         uuid.New().String(),
		RoomID:     room.ID,
		SenderID:   req.SenderID,
		ReceiverID: receiver,
		KindID:     kind.ID,
		Price:      kind.Price,
		CreatedAt:  time.Now(),
	}
	if err := uc.ledger.DebitThenCredit(ctx, gift.SenderID, gift.ReceiverID, gift.Price, ledgerdomain.KindGift, gift.Reference()); err != nil {
		return nil, err
	}

	if err := uc.repo.Record(ctx, gift); err != nil {
		logger.Log.Error("record gift failed, reversing payment",
			zap.String("gift_id", gift.ID),
			zap.String("room_id", gift.RoomID),
			zap.Error(err),
		)
		if revErr := uc.ledger.Reverse(ctx, gift.ReceiverID, gift.SenderID, gift.Price, gift.Reference()); revErr != nil {
			return nil, fmt.Errorf("record gift: %w (reversal pending: %v)", err, revErr)
		}
		return nil, fmt.Errorf("record gift: %w", err)
	}

	uc.bus.Emit(ctx, gift.RoomID, eventdomain.KindGiftSent, eventdomain.StreamGift, 0, domain.Celebration{
		GiftID:     gift.ID,
		Kind:       kind.ID,
		Name:       kind.Name,
		IconURL:    uc.icons.IconURL(ctx, kind.IconKey),
		SenderID:   gift.SenderID,
		SenderName: req.SenderName,
		ReceiverID: gift.ReceiverID,
		Price:      gift.Price,
		SentAt:     gift.CreatedAt,
	})
	uc.notifier.Notify(ctx, gift.ReceiverID, "You received a gift", fmt.Sprintf("%s sent you a %s", displayName(req), kind.Name))
	return gift, nil
}

func displayName(req domain.SendGiftReq) string {
	if req.SenderName != "" {
		return req.SenderName
	}
	return "Someone"
}

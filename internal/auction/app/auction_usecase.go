package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live_session_service/internal/auction/domain"
	eventdomain "live_session_service/internal/eventbus/domain"
	notifydomain "live_session_service/internal/notify/domain"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/internal/room/repository"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/metrics"

	"go.uber.org/zap"
)

// Gate moderation check run before any mutation
type Gate interface {
	Check(ctx context.Context, roomID, userID string, action roomdomain.Action) error
}

// AuctionUseCase per room bidding. Auction state lives on the Room row and every
// bid is decided inside the room lock against the server clock.
type AuctionUseCase struct {
	rooms       repository.RoomRepository
	gate        Gate
	bus         eventdomain.Publisher
	notifier    notifydomain.Notifier
	metrics     *metrics.Metrics
	policy      domain.Policy
	maxDuration time.Duration
	now         func() time.Time
}

// NewAuctionUseCase create AuctionUseCase
func NewAuctionUseCase(rooms repository.RoomRepository, gate Gate, bus eventdomain.Publisher, notifier notifydomain.Notifier, m *metrics.Metrics, cfg config.AuctionConfig) *AuctionUseCase {
	return &AuctionUseCase{
		rooms:    rooms,
		gate:     gate,
		bus:      bus,
		notifier: notifier,
		metrics:  m,
		policy: domain.Policy{
			MinIncrement:            cfg.MinIncrement,
			FirstBidAtStartingPrice: cfg.FirstBidAtStartingPrice,
		},
		maxDuration: cfg.MaxDuration,
		now:         time.Now,
	}
}

// Policy bid acceptance policy in force
func (uc *AuctionUseCase) Policy() domain.Policy {
	return uc.policy
}

// OpenAuction host starts an auction with a starting price, closing after duration
func (uc *AuctionUseCase) OpenAuction(ctx context.Context, hostID, roomID string, startingPrice int64, duration time.Duration) (*roomdomain.Room, error) {
	if uc.maxDuration > 0 && duration > uc.maxDuration {
		return nil, errprocess.New(errprocess.CodeInvalidRoomState, fmt.Sprintf("an auction may last at most %s", uc.maxDuration))
	}
	room, err := uc.rooms.UpdateLocked(ctx, roomID, func(r *roomdomain.Room) error {
		if !r.IsHost(hostID) {
			return errprocess.ErrNotHost
		}
		return domain.Open(r, startingPrice, uc.now(), duration)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("auction opened",
		zap.String("room_id", roomID),
		zap.Int64("starting_price", startingPrice),
		zap.Time("end_time", room.AuctionEndTime),
	)
	uc.bus.Emit(ctx, room.ID, eventdomain.KindAuctionOpened, eventdomain.StreamRoom, room.Version, room)
	return room, nil
}

// PlaceBid accept the bid iff the auction is open, not past its end time and the
// amount beats the current bid. Losing bids persist nothing.
func (uc *AuctionUseCase) PlaceBid(ctx context.Context, bidderID, roomID string, amount int64) (*roomdomain.Room, error) {
	if err := uc.gate.Check(ctx, roomID, bidderID, roomdomain.ActionBid); err != nil {
		uc.metrics.Bid(string(errprocess.CodeOf(err)))
		return nil, err
	}

	var outbid string
	room, err := uc.rooms.UpdateLocked(ctx, roomID, func(r *roomdomain.Room) error {
		if r.IsHost(bidderID) {
			return errprocess.New(errprocess.CodeForbidden, "the host cannot bid in their own auction")
		}
		previous := r.TopBidderID
		if err := domain.AcceptBid(r, uc.policy, bidderID, amount, uc.now()); err != nil {
			return err
		}
		if previous != bidderID {
			outbid = previous
		}
		return nil
	})
	if err != nil {
		uc.metrics.Bid(string(errprocess.CodeOf(err)))
		logger.Log.Debug("bid rejected",
			zap.String("room_id", roomID),
			zap.String("bidder_id", bidderID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	uc.metrics.Bid("ok")
	uc.bus.Emit(ctx, room.ID, eventdomain.KindBidAccepted, eventdomain.StreamRoom, room.Version, room)
	if outbid != "" {
		uc.notifier.Notify(ctx, outbid, "You have been outbid", fmt.Sprintf("The bid in %q is now %d coins", room.Title, room.CurrentBid))
	}
	return room, nil
}

// CloseDue close every open auction whose end time has passed, returns how many were closed
func (uc *AuctionUseCase) CloseDue(ctx context.Context, now time.Time) (int, error) {
	due, err := uc.rooms.ListDueAuctions(ctx, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, candidate := range due {
		room, err := uc.rooms.UpdateLocked(ctx, candidate.ID, func(r *roomdomain.Room) error {
			// 重新確認, 另一個 node 可能已經關閉或重開
			if r.AuctionStatus != roomdomain.AuctionOpen || now.Before(r.AuctionEndTime) {
				return errNothingDue
			}
			domain.Close(r)
			return nil
		})
		if errors.Is(err, errNothingDue) {
			continue
		}
		if err != nil {
			logger.Log.Warn("close auction", zap.String("room_id", candidate.ID), zap.Error(err))
			continue
		}
		closed++
		uc.publishClosed(ctx, room)
	}
	return closed, nil
}

func (uc *AuctionUseCase) publishClosed(ctx context.Context, room *roomdomain.Room) {
	logger.Log.Info("auction closed",
		zap.String("room_id", room.ID),
		zap.String("winner_id", room.TopBidderID),
		zap.Int64("amount", room.CurrentBid),
	)
	uc.bus.Emit(ctx, room.ID, eventdomain.KindAuctionClosed, eventdomain.StreamRoom, room.Version, room)
	if room.TopBidderID != "" {
		uc.notifier.Notify(ctx, room.TopBidderID, "You won the auction", fmt.Sprintf("Your bid of %d coins won in %q", room.CurrentBid, room.Title))
	}
}

var errNothingDue = errprocess.New(errprocess.CodeInvalidRoomState, "nothing due")

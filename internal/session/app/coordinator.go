package app

import (
	"context"
	"time"

	auctionapp "live_session_service/internal/auction/app"
	chatapp "live_session_service/internal/chat/app"
	eventapp "live_session_service/internal/eventbus/app"
	eventdomain "live_session_service/internal/eventbus/domain"
	giftapp "live_session_service/internal/gift/app"
	goalapp "live_session_service/internal/goal/app"
	ledgerapp "live_session_service/internal/ledger/app"
	pollapp "live_session_service/internal/poll/app"
	roomapp "live_session_service/internal/room/app"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/internal/session/domain"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/metrics"

	"go.uber.org/zap"
)

// snapshotChat 重新同步時帶回的聊天訊息數
const snapshotChat = 50

// Coordinator composes the engines behind one room session
type Coordinator struct {
	Rooms      *roomapp.RoomUseCase
	Moderation *roomapp.ModerationUseCase
	Auctions   *auctionapp.AuctionUseCase
	Gifts      *giftapp.GiftUseCase
	Polls      *pollapp.PollUseCase
	Goals      *goalapp.GoalUseCase
	Chat       *chatapp.MessageUseCase
	Ledger     *ledgerapp.LedgerUseCase
	Bus        *eventapp.Bus
	Metrics    *metrics.Metrics
}

// Snapshot authoritative state of roomID as seen by viewerID, with the
// version of every full-replace stream so the client can resume incremental events.
func (c *Coordinator) Snapshot(ctx context.Context, roomID, viewerID string) (*domain.Snapshot, error) {
	// banned 或尚未核准的成員看不到房間內容
	if err := c.Moderation.Check(ctx, roomID, viewerID, roomdomain.ActionRead); err != nil {
		return nil, err
	}
	room, err := c.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{
		Room:     room,
		TakenAt:  time.Now(),
		Versions: []eventdomain.StreamVersion{{Stream: eventdomain.StreamRoom, Version: room.Version}},
	}

	poll, err := c.Polls.Latest(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if poll != nil {
		view := poll.View()
		snap.Poll = &view
		snap.Versions = append(snap.Versions, eventdomain.StreamVersion{Stream: eventdomain.StreamPoll(poll.ID), Version: poll.Version})
		if snap.MyVote, err = c.Polls.VoteOf(ctx, poll.ID, viewerID); err != nil {
			return nil, err
		}
	}

	goal, err := c.Goals.Latest(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if goal != nil {
		view := goal.View()
		snap.Goal = &view
		snap.Versions = append(snap.Versions, eventdomain.StreamVersion{Stream: eventdomain.StreamGoal(goal.ID), Version: goal.Version})
	}

	rec, err := c.Moderation.Record(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		view := rec.View()
		snap.Moderation = &view
		snap.Versions = append(snap.Versions, eventdomain.StreamVersion{Stream: eventdomain.StreamModeration(viewerID), Version: rec.Version})
	}

	if snap.Chat, err = c.Chat.Recent(ctx, roomID, snapshotChat); err != nil {
		return nil, err
	}
	return snap, nil
}

// EndStream end the room and drop its chat history
func (c *Coordinator) EndStream(ctx context.Context, hostID, roomID string) error {
	if err := c.Rooms.EndStream(ctx, hostID, roomID); err != nil {
		return err
	}
	if err := c.Chat.DeleteRoom(ctx, roomID); err != nil {
		logger.Log.Warn("delete chat history", zap.String("room_id", roomID), zap.Error(err))
	}
	return nil
}

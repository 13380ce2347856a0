package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind what was committed
type EventKind string

const (
	KindRoomUpdated       EventKind = "room.updated"
	KindRoomEnded         EventKind = "room.ended"
	KindAuctionOpened     EventKind = "auction.opened"
	KindBidAccepted       EventKind = "auction.bid_accepted"
	KindAuctionClosed     EventKind = "auction.closed"
	KindModerationUpdated EventKind = "moderation.updated"
	KindGiftSent          EventKind = "gift.sent"
	KindPollStarted       EventKind = "poll.started"
	KindPollTally         EventKind = "poll.tally"
	KindPollEnded         EventKind = "poll.ended"
	KindGoalUpdated       EventKind = "goal.updated"
	KindGoalReached       EventKind = "goal.reached"
	KindGoalConfirmed     EventKind = "goal.confirmed"
	KindGoalRejected      EventKind = "goal.rejected"
	KindGoalExpired       EventKind = "goal.expired"
	KindGoalRefunded      EventKind = "goal.refunded"
	KindChatMessage       EventKind = "chat.message"
)

// 事件串流名稱, full-replace 的 stream 依 Version 比較新舊
const (
	StreamRoom = "room"
	StreamChat = "chat"
	StreamGift = "gift"
)

// StreamPoll full-replace stream of one poll
func StreamPoll(pollID string) string { return "poll:" + pollID }

// StreamGoal full-replace stream of one donation goal
func StreamGoal(goalID string) string { return "goal:" + goalID }

// StreamModeration full-replace stream of one member's moderation record
func StreamModeration(userID string) string { return "moderation:" + userID }

// SessionEvent committed state change fanned out to every subscriber of a room.
// Full-replace streams carry the entity snapshot with its Version, append-only
// streams (chat, gift) carry Version 0 and are identified by ID.
type SessionEvent struct {
	ID          string          `json:"id"`
	RoomID      string          `json:"room_id"`
	Kind        EventKind       `json:"kind"`
	Stream      string          `json:"stream"`
	Version     int64           `json:"version"`
	Payload     json.RawMessage `json:"payload"`
	CommittedAt time.Time       `json:"committed_at"`
}

// AppendOnly true for streams deduplicated by event ID instead of Version
func (e SessionEvent) AppendOnly() bool {
	return e.Stream == StreamChat || e.Stream == StreamGift
}

// NewEvent build an event with a fresh ID, payload is marshalled to JSON
func NewEvent(roomID string, kind EventKind, stream string, version int64, payload interface{}) (SessionEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SessionEvent{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return SessionEvent{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Kind:        kind,
		Stream:      stream,
		Version:     version,
		Payload:     body,
		CommittedAt: time.Now(),
	}, nil
}

// StreamVersion last committed version of one full-replace stream, used for resync
type StreamVersion struct {
	Stream  string `json:"stream"`
	Version int64  `json:"version"`
}

// Publisher what the engines need from the bus: publish a committed change
type Publisher interface {
	Emit(ctx context.Context, roomID string, kind EventKind, stream string, version int64, payload interface{})
}

package domain

import (
	"time"

	chatdomain "live_session_service/internal/chat/domain"
	eventdomain "live_session_service/internal/eventbus/domain"
	goaldomain "live_session_service/internal/goal/domain"
	polldomain "live_session_service/internal/poll/domain"
	roomdomain "live_session_service/internal/room/domain"
)

// Action websocket request action
type Action string

const (
	// OpenAuction websocket action open_auction
	OpenAuction Action = "open_auction"
	// PlaceBid websocket action place_bid
	PlaceBid Action = "place_bid"
	// SendGift websocket action send_gift
	SendGift Action = "send_gift"

	// StartPoll websocket action start_poll
	StartPoll Action = "start_poll"
	// CastVote websocket action cast_vote
	CastVote Action = "cast_vote"
	// CancelPoll websocket action cancel_poll
	CancelPoll Action = "cancel_poll"

	// CreateGoal websocket action create_goal
	CreateGoal Action = "create_goal"
	// FundGoal websocket action fund_goal
	FundGoal Action = "fund_goal"
	// ConfirmGoal websocket action confirm_goal
	ConfirmGoal Action = "confirm_goal"
	// RejectGoal websocket action reject_goal
	RejectGoal Action = "reject_goal"

	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// Like websocket action like
	Like Action = "like"

	// MuteMember websocket action mute_member
	MuteMember Action = "mute_member"
	// BanMember websocket action ban_member
	BanMember Action = "ban_member"
	// ApproveMember websocket action approve_member
	ApproveMember Action = "approve_member"
	// RejectMember websocket action reject_member
	RejectMember Action = "reject_member"

	// Resync websocket action resync, answered with a fresh snapshot
	Resync Action = "resync"

	// SnapshotPush server pushed snapshot
	SnapshotPush Action = "snapshot"
	// EventPush server pushed session event
	EventPush Action = "event"
	// ErrorPush server pushed error
	ErrorPush Action = "error"
	// MembershipPush sent instead of the snapshot while the membership request waits for the host
	MembershipPush Action = "membership_pending"
)

// WSRequest websocket Request, fields are read per action
type WSRequest struct {
	Action        string   `json:"action"`
	RequestID     string   `json:"request_id,omitempty"`
	Amount        int64    `json:"amount"`
	DurationSecs  int64    `json:"duration_secs"`
	GiftID        string   `json:"gift_id"`
	ReceiverID    string   `json:"receiver_id"`
	PollID        string   `json:"poll_id"`
	CandidateID   string   `json:"candidate_id"`
	CandidateIDs  []string `json:"candidate_ids"`
	GoalID        string   `json:"goal_id"`
	ModelID       string   `json:"model_id"`
	Content       string   `json:"content"`
	MemberID      string   `json:"member_id"`
	Enabled       *bool    `json:"enabled,omitempty"`
	StartingPrice int64    `json:"starting_price"`
}

// MaxDurationSecs longest auction or poll a request may ask for, 30 days
const MaxDurationSecs = 30 * 24 * 60 * 60

// Duration requested duration, 0 when duration_secs is not in (0, MaxDurationSecs]
// so the engines reject it instead of multiplying into an overflow
func (r WSRequest) Duration() time.Duration {
	if r.DurationSecs <= 0 || r.DurationSecs > MaxDurationSecs {
		return 0
	}
	return time.Duration(r.DurationSecs) * time.Second
}

// Toggle enabled flag, missing means true
func (r WSRequest) Toggle() bool {
	return r.Enabled == nil || *r.Enabled
}

// WSResponse websocket Response. Code is the machine readable rejection code,
// Error the reason shown to the user.
type WSResponse struct {
	Action    string      `json:"action"`
	RequestID string      `json:"request_id,omitempty"`
	Success   bool        `json:"success"`
	Code      string      `json:"code,omitempty"`
	Error     string      `json:"error,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Snapshot authoritative room state a client rehydrates from
type Snapshot struct {
	Room       *roomdomain.Room            `json:"room"`
	Poll       *polldomain.PollView        `json:"poll,omitempty"`
	MyVote     *polldomain.PollVote        `json:"my_vote,omitempty"`
	Goal       *goaldomain.GoalView        `json:"goal,omitempty"`
	Moderation *roomdomain.ModerationView  `json:"moderation,omitempty"`
	Chat       []chatdomain.ChatMessage    `json:"chat"`
	Versions   []eventdomain.StreamVersion `json:"versions"`
	TakenAt    time.Time                   `json:"taken_at"`
}

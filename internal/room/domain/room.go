package domain

import "time"

// Lifecycle room lifecycle, scheduled → live → ended
type Lifecycle string

const (
	//LifecycleScheduled room created, stream not started
	LifecycleScheduled Lifecycle = "scheduled"
	//LifecycleLive stream is on air
	LifecycleLive Lifecycle = "live"
	//LifecycleEnded host ended the stream, the room is deleted right after
	LifecycleEnded Lifecycle = "ended"
)

// Visibility 房間是否公開
type Visibility string

const (
	//VisibilityPublic anyone can see the room
	VisibilityPublic Visibility = "public"
	//VisibilityPrivate members only
	VisibilityPrivate Visibility = "private"
)

// JoinMode 決定加入房間條件
type JoinMode string

const (
	//JoinModeOpen allow all
	JoinModeOpen JoinMode = "open" // 任何人都能加入
	//JoinModePassword need password
	JoinModePassword JoinMode = "password" // 需輸入密碼
	//JoinModeApprove need approve
	JoinModeApprove JoinMode = "approve" // 需主播同意
)

// AuctionStatus auction state machine, inactive → open → closed
type AuctionStatus string

const (
	AuctionInactive AuctionStatus = "inactive"
	AuctionOpen     AuctionStatus = "open"
	AuctionClosed   AuctionStatus = "closed"
)

// Room one live session, authoritative copy of the auction state as well
type Room struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	HostID       string     `gorm:"index;not null" json:"host_id"`
	Title        string     `json:"title"`
	Lifecycle    Lifecycle  `gorm:"type:varchar(16);index" json:"lifecycle"`
	Visibility   Visibility `gorm:"type:varchar(16)" json:"visibility"`
	JoinMode     JoinMode   `gorm:"type:varchar(16)" json:"join_mode"`
	PasscodeHash string     `json:"-"`
	ProductSetID string     `json:"product_set_id,omitempty"`
	ViewerCount  int64      `json:"viewer_count"`
	LikeCount    int64      `json:"like_count"`

	AuctionEnabled bool          `json:"auction_enabled"`
	AuctionStatus  AuctionStatus `gorm:"type:varchar(16);index" json:"auction_status"`
	StartingPrice  int64         `json:"starting_price"`
	CurrentBid     int64         `json:"current_bid"`
	TopBidderID    string        `json:"top_bidder_id,omitempty"`
	AuctionEndTime time.Time     `json:"auction_end_time"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsHost caller is the room host
func (r *Room) IsHost(userID string) bool {
	return r.HostID == userID
}

// RequiresMembership private rooms and non open join modes need an approved record
func (r *Room) RequiresMembership() bool {
	return r.Visibility == VisibilityPrivate || r.JoinMode != JoinModeOpen
}

// StartStreamReq usecase start stream request
type StartStreamReq struct {
	Title        string     `json:"title"`
	Visibility   Visibility `json:"visibility"`
	JoinMode     JoinMode   `json:"join_mode"`
	Passcode     string     `json:"passcode,omitempty"`
	ProductSetID string     `json:"product_set_id,omitempty"`
}

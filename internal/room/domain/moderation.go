package domain

import (
	"time"

	"gorm.io/gorm"
)

// MembershipStatus membership of a user in a room
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
)

// Action inbound room action checked by the moderation registry
type Action string

const (
	ActionJoin   Action = "join"
	ActionChat   Action = "chat"
	ActionBid    Action = "bid"
	ActionGift   Action = "gift"
	ActionVote   Action = "vote"
	ActionDonate Action = "donate"
	ActionLike   Action = "like"
	// ActionRead snapshot and live event access
	ActionRead Action = "read"
)

// ModerationRecord (room, user) flags. Rejected memberships are soft deleted so
// Version keeps increasing if the user asks to join again.
type ModerationRecord struct {
	RoomID           string           `gorm:"primaryKey;type:varchar(64)" json:"room_id"`
	UserID           string           `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	IsMuted          bool             `json:"is_muted"`
	IsBanned         bool             `json:"is_banned"`
	MembershipStatus MembershipStatus `gorm:"type:varchar(16)" json:"membership_status"`
	Version          int64            `json:"version"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`
}

// Removed true when the record was rejected (soft deleted)
func (m *ModerationRecord) Removed() bool {
	return m.DeletedAt.Valid
}

// Approved membership granted
func (m *ModerationRecord) Approved() bool {
	return m != nil && !m.Removed() && m.MembershipStatus == MembershipApproved
}

// ModerationView payload of moderation.updated
type ModerationView struct {
	RoomID           string           `json:"room_id"`
	UserID           string           `json:"user_id"`
	IsMuted          bool             `json:"is_muted"`
	IsBanned         bool             `json:"is_banned"`
	MembershipStatus MembershipStatus `json:"membership_status,omitempty"`
	Removed          bool             `json:"removed,omitempty"`
	Version          int64            `json:"version"`
}

// View event payload of the record
func (m *ModerationRecord) View() ModerationView {
	return ModerationView{
		RoomID:           m.RoomID,
		UserID:           m.UserID,
		IsMuted:          m.IsMuted,
		IsBanned:         m.IsBanned,
		MembershipStatus: m.MembershipStatus,
		Removed:          m.Removed(),
		Version:          m.Version,
	}
}

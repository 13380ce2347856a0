package domain

import "time"

// GiftKind catalog entry, price is fixed per kind
type GiftKind struct {
	ID      string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name    string `json:"name"`
	IconKey string `json:"icon_key"`
	Price   int64  `json:"price"`
}

// Gift one sent gift, immutable once recorded
type Gift struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RoomID     string    `gorm:"index" json:"room_id"`
	SenderID   string    `gorm:"index" json:"sender_id"`
	ReceiverID string    `gorm:"index" json:"receiver_id"`
	KindID     string    `json:"kind_id"`
	Price      int64     `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reference ledger reference of the gift payment
func (g *Gift) Reference() string {
	return "gift:" + g.ID
}

// Celebration cosmetic payload of gift.sent, never authoritative for balances
type Celebration struct {
	GiftID     string    `json:"gift_id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	IconURL    string    `json:"icon_url"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ReceiverID string    `json:"receiver_id"`
	Price      int64     `json:"price"`
	SentAt     time.Time `json:"sent_at"`
}

// SendGiftReq usecase send gift request
type SendGiftReq struct {
	RoomID     string `json:"room_id"`
	SenderID   string `json:"-"`
	SenderName string `json:"-"`
	ReceiverID string `json:"receiver_id,omitempty"` // 空白代表送給主播
	KindID     string `json:"kind_id"`
}

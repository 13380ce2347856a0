package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	errprocess "live_session_service/pkg/err"
)

// MaxContentLength longest message accepted, in characters
const MaxContentLength = 500

// BucketDateLayout 每個房間每天一個 bucket
const BucketDateLayout = "2006-01-02"

// MessageBucket 表示某個房間某天的訊息存儲
type MessageBucket struct {
	RoomID   string        `bson:"room_id" json:"room_id"`
	Date     string        `bson:"date" json:"date"` // 格式："2025-01-23"
	Messages []ChatMessage `bson:"messages" json:"messages"`
}

// ChatMessage 表示一則聊天訊息
type ChatMessage struct {
	ID         string `bson:"id" json:"id"`
	RoomID     string `bson:"room_id" json:"room_id"`
	SenderID   string `bson:"sender_id" json:"sender_id"`
	SenderName string `bson:"sender_name" json:"sender_name"`
	Content    string `bson:"content" json:"content"`
	// Timestamp unix milliseconds
	Timestamp int64 `bson:"timestamp" json:"timestamp"`
}

// BucketDate bucket key of the message
func (m ChatMessage) BucketDate() string {
	return time.UnixMilli(m.Timestamp).UTC().Format(BucketDateLayout)
}

// NormalizeContent trimmed content, InvalidMessage when empty or too long
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > MaxContentLength {
		return "", errprocess.ErrInvalidMessage
	}
	return content, nil
}

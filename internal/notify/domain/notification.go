package domain

import (
	"context"
	"time"
)

// Notification push payload delivered to a user's devices
type Notification struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers one notification to the push sink
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier fire-and-forget notification, never blocks or fails the caller
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string)
}

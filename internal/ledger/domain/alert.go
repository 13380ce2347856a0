package domain

import (
	"context"
	"time"
)

// AlertKind operational alert type
type AlertKind string

const (
	// AlertRefundFailed a refund could not be credited
	AlertRefundFailed AlertKind = "refund_failed"
	// AlertCompensationFailed a reversal after a half applied pair could not be credited
	AlertCompensationFailed AlertKind = "compensation_failed"
)

// OperationalAlert outstanding money that needs operator attention
type OperationalAlert struct {
	Kind      AlertKind `json:"kind"`
	Reference string    `json:"reference"`
	OwnerID   string    `json:"owner_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	RaisedAt  time.Time `json:"raised_at"`
}

// AlertSink delivers operational alerts
type AlertSink interface {
	Raise(ctx context.Context, alert OperationalAlert) error
}

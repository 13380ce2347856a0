package domain

import (
	"math"
	"time"
)

// EntryKind why coins moved
type EntryKind string

const (
	KindTopUp    EntryKind = "topup"
	KindTransfer EntryKind = "transfer"
	KindCredit   EntryKind = "credit"
	KindDebit    EntryKind = "debit"
	KindGift     EntryKind = "gift"
	KindDonation EntryKind = "donation"
	KindRefund   EntryKind = "refund"
	KindReversal EntryKind = "reversal"
)

// Wallet coin balance of one owner, balance never goes below zero
type Wallet struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry append-only journal row, Reference is unique so a replay is a no-op
type Entry struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	Kind      EntryKind `json:"kind"`
	FromID    string    `json:"from_id,omitempty"`
	ToID      string    `json:"to_id,omitempty"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// RefundOrder one credit owed back to a wallet
type RefundOrder struct {
	Reference string
	OwnerID   string
	Amount    int64
}

// RefundFailure a refund order that could not be applied
type RefundFailure struct {
	Order    RefundOrder
	Attempts int
	Err      error
}

// RefundReport outcome of a refund batch
type RefundReport struct {
	Refunded []RefundOrder
	Failed   []RefundFailure
}

// TotalRefunded sum of the applied orders
func (r RefundReport) TotalRefunded() int64 {
	var sum int64
	for _, o := range r.Refunded {
		sum += o.Amount
	}
	return sum
}

// CanReceive balance can take amount more without overflowing int64
func CanReceive(balance, amount int64) bool {
	return balance <= math.MaxInt64-amount
}

package domain

import (
	"time"

	roomdomain "live_session_service/internal/room/domain"
	errprocess "live_session_service/pkg/err"
)

// Policy bid acceptance policy.
// MinIncrement 1 means strictly greater than the current bid. A first bid must
// beat the starting price the same way unless FirstBidAtStartingPrice is set.
type Policy struct {
	MinIncrement            int64
	FirstBidAtStartingPrice bool
}

// Admits report whether amount is high enough to become the leading bid.
// Compared as a difference so a bid near MaxInt64 cannot wrap the next minimum.
func (p Policy) Admits(room *roomdomain.Room, amount int64) bool {
	inc := max(p.MinIncrement, 1)
	base := room.CurrentBid
	if room.TopBidderID == "" {
		base = room.StartingPrice
		if p.FirstBidAtStartingPrice {
			return amount >= base
		}
	}
	// amount > 0 且 base >= 0, 相減不會溢位
	return amount > base && amount-base >= inc
}

// ErrAuctionRunning the room already has an auction that has not reached its end
var ErrAuctionRunning = errprocess.New(errprocess.CodeInvalidRoomState, "an auction is already running in this room")

// Open start an auction on the room, ending at now+duration
func Open(room *roomdomain.Room, startingPrice int64, now time.Time, duration time.Duration) error {
	if room.Lifecycle == roomdomain.LifecycleEnded {
		return errprocess.ErrInvalidRoomState
	}
	if room.AuctionStatus == roomdomain.AuctionOpen && now.Before(room.AuctionEndTime) {
		return ErrAuctionRunning
	}
	if duration <= 0 {
		return errprocess.New(errprocess.CodeInvalidRoomState, "auction duration must be positive")
	}
	if startingPrice < 0 {
		return errprocess.ErrInvalidAmount
	}
	room.AuctionEnabled = true
	room.AuctionStatus = roomdomain.AuctionOpen
	room.StartingPrice = startingPrice
	room.CurrentBid = 0
	room.TopBidderID = ""
	room.AuctionEndTime = now.Add(duration)
	return nil
}

// AcceptBid apply a bid against the authoritative room state, now is the server clock
func AcceptBid(room *roomdomain.Room, p Policy, bidderID string, amount int64, now time.Time) error {
	switch room.AuctionStatus {
	case roomdomain.AuctionOpen:
	case roomdomain.AuctionClosed:
		return errprocess.ErrAuctionClosed
	default:
		return errprocess.ErrAuctionNotOpen
	}
	if !now.Before(room.AuctionEndTime) {
		return errprocess.ErrAuctionClosed
	}
	if amount <= 0 {
		return errprocess.ErrInvalidAmount
	}
	if !p.Admits(room, amount) {
		return errprocess.ErrBidTooLow
	}
	room.CurrentBid = amount
	room.TopBidderID = bidderID
	return nil
}

// Close open → closed
func Close(room *roomdomain.Room) bool {
	if room.AuctionStatus != roomdomain.AuctionOpen {
		return false
	}
	room.AuctionStatus = roomdomain.AuctionClosed
	return true
}

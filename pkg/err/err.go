package errprocess

import (
	"errors"

	"live_session_service/pkg/logger"
)

// Code machine readable rejection code sent back to clients
type Code string

const (
	CodeInsufficientBalance   Code = "insufficient_balance"
	CodeUnknownAccount        Code = "unknown_account"
	CodeInvalidAmount         Code = "invalid_amount"
	CodeAuctionClosed         Code = "auction_closed"
	CodeAuctionNotOpen        Code = "auction_not_open"
	CodeBidTooLow             Code = "bid_too_low"
	CodeForbidden             Code = "forbidden"
	CodeMuted                 Code = "muted"
	CodeAlreadyVoted          Code = "already_voted"
	CodePollClosed            Code = "poll_closed"
	CodeInvalidCandidateCount Code = "invalid_candidate_count"
	CodeInvalidCandidate      Code = "invalid_candidate"
	CodePollAlreadyActive     Code = "poll_already_active"
	CodePollNotFound          Code = "poll_not_found"
	CodeRoomNotFound          Code = "room_not_found"
	CodeInvalidRoomState      Code = "invalid_room_state"
	CodeUnknownGift           Code = "unknown_gift"
	CodeGoalNotFound          Code = "goal_not_found"
	CodeGoalNotActive         Code = "goal_not_active"
	CodeGoalAlreadyActive     Code = "goal_already_active"
	CodeDecisionWindowClosed  Code = "decision_window_closed"
	CodeRefundFailure         Code = "refund_failure"
	CodeInvalidMessage        Code = "invalid_message"
	CodeRateLimited           Code = "rate_limited"
	CodeInternal              Code = "internal"
)

// Error coded error, Message is safe to show to the end user
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New create a coded error
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// 所有 engine 對外回報的拒絕原因
var (
	ErrInsufficientBalance = New(CodeInsufficientBalance, "insufficient coins")
	ErrUnknownAccount      = New(CodeUnknownAccount, "wallet does not exist")
	ErrInvalidAmount       = New(CodeInvalidAmount, "amount must be a positive number of coins")
	ErrSelfTransfer        = New(CodeInvalidAmount, "you cannot send coins to yourself")

	ErrAuctionClosed  = New(CodeAuctionClosed, "the auction has already closed")
	ErrAuctionNotOpen = New(CodeAuctionNotOpen, "there is no auction running in this room")
	ErrBidTooLow      = New(CodeBidTooLow, "bid too low")

	ErrBanned            = New(CodeForbidden, "you are banned from this room")
	ErrNotHost           = New(CodeForbidden, "only the host can do that")
	ErrNotModel          = New(CodeForbidden, "only the goal's model can decide on it")
	ErrMembershipPending = New(CodeForbidden, "your membership request is still pending")
	ErrWrongPasscode     = New(CodeForbidden, "wrong room passcode")
	ErrSelfModeration    = New(CodeForbidden, "the host cannot moderate themself")
	ErrMuted             = New(CodeMuted, "you are muted in this room")

	ErrAlreadyVoted          = New(CodeAlreadyVoted, "you have already voted in this poll")
	ErrPollClosed            = New(CodePollClosed, "the poll has ended")
	ErrInvalidCandidateCount = New(CodeInvalidCandidateCount, "a poll needs exactly 3 different candidates")
	ErrInvalidCandidate      = New(CodeInvalidCandidate, "that candidate is not part of this poll")
	ErrPollAlreadyActive     = New(CodePollAlreadyActive, "another poll is already running in this room")
	ErrPollNotFound          = New(CodePollNotFound, "poll not found")

	ErrRoomNotFound     = New(CodeRoomNotFound, "room not found")
	ErrInvalidRoomState = New(CodeInvalidRoomState, "the room cannot do that right now")

	ErrUnknownGift = New(CodeUnknownGift, "unknown gift")

	ErrGoalNotFound         = New(CodeGoalNotFound, "donation goal not found")
	ErrGoalNotActive        = New(CodeGoalNotActive, "the donation goal is no longer accepting donations")
	ErrGoalAlreadyActive    = New(CodeGoalAlreadyActive, "this room already has an open donation goal")
	ErrDecisionWindowClosed = New(CodeDecisionWindowClosed, "the decision window has passed, donations were refunded")
	ErrRefundFailure        = New(CodeRefundFailure, "some refunds could not be completed, support has been alerted")

	ErrInvalidMessage = New(CodeInvalidMessage, "message is empty or too long")
	ErrRateLimited    = New(CodeRateLimited, "too many requests, slow down")
)

// CodeOf returns the code carried by err, CodeInternal when err is not coded
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Reason returns the user legible reason of err
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "something went wrong, please try again"
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

package domain

import (
	"time"

	errprocess "live_session_service/pkg/err"
)

// GoalStatus donation goal status
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalReached   GoalStatus = "reached"
	GoalConfirmed GoalStatus = "confirmed"
	GoalRejected  GoalStatus = "rejected"
	GoalExpired   GoalStatus = "expired"
)

// GoPrompt carried by the confirmed event, the model's client turns it into a go-live button
const GoPrompt = "go_live"

// DonationGoal crowd funding target for a model in a room.
// Once rejected or expired every contribution is owed back to its contributor.
type DonationGoal struct {
	ID               string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RoomID           string         `gorm:"index;type:varchar(64)" json:"room_id"`
	ModelID          string         `gorm:"type:varchar(64)" json:"model_id"`
	TargetAmount     int64          `json:"target_amount"`
	CurrentAmount    int64          `json:"current_amount"`
	Status           GoalStatus     `gorm:"type:varchar(16);index" json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	ReachedAt        *time.Time     `json:"reached_at,omitempty"`
	DecisionDeadline *time.Time     `gorm:"index" json:"decision_deadline,omitempty"`
	DecidedAt        *time.Time     `json:"decided_at,omitempty"`
	Version          int64          `json:"version"`
	Contributions    []Contribution `gorm:"foreignKey:GoalID" json:"contributions"`
}

// Contribution one donation. RefundedAt is set once the coins went back.
type Contribution struct {
	ID              string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	GoalID          string     `gorm:"index;type:varchar(64)" json:"goal_id"`
	ContributorID   string     `gorm:"type:varchar(64)" json:"contributor_id"`
	Amount          int64      `json:"amount"`
	CreatedAt       time.Time  `json:"created_at"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty"`
	RefundAttempts  int        `json:"refund_attempts"`
	LastRefundError string     `json:"last_refund_error,omitempty"`
}

// RefundReference ledger reference of the refund of c, the same on every retry
func (c Contribution) RefundReference() string {
	return "goal-refund:" + c.ID
}

// FundReference ledger reference of the debit that paid for c
func (c Contribution) FundReference() string {
	return "goal-fund:" + c.ID
}

// NewGoal build an active goal
func NewGoal(id, roomID, modelID string, target int64, now time.Time) (*DonationGoal, error) {
	if target <= 0 {
		return nil, errprocess.ErrInvalidAmount
	}
	if modelID == "" {
		return nil, errprocess.New(errprocess.CodeInvalidRoomState, "a donation goal needs a model")
	}
	return &DonationGoal{
		ID:           id,
		RoomID:       roomID,
		ModelID:      modelID,
		TargetAmount: target,
		Status:       GoalActive,
		CreatedAt:    now,
		Version:      1,
	}, nil
}

// IsOpen active or reached, waiting for the model
func (g *DonationGoal) IsOpen() bool {
	return g.Status == GoalActive || g.Status == GoalReached
}

// OwesRefunds rejected and expired goals give every contribution back
func (g *DonationGoal) OwesRefunds() bool {
	return g.Status == GoalRejected || g.Status == GoalExpired
}

// Contribute append c. Crossing the target moves the goal to reached and
// starts the decision window, the return value reports that transition.
func (g *DonationGoal) Contribute(c Contribution, now time.Time, window time.Duration) (bool, error) {
	if g.Status != GoalActive {
		return false, errprocess.ErrGoalNotActive
	}
	if c.Amount <= 0 {
		return false, errprocess.ErrInvalidAmount
	}
	g.Contributions = append(g.Contributions, c)
	g.CurrentAmount += c.Amount
	if g.CurrentAmount < g.TargetAmount {
		return false, nil
	}
	deadline := now.Add(window)
	g.Status = GoalReached
	g.ReachedAt = &now
	g.DecisionDeadline = &deadline
	return true, nil
}

// WindowOpen reached and the decision deadline has not passed
func (g *DonationGoal) WindowOpen(now time.Time) bool {
	return g.Status == GoalReached && g.DecisionDeadline != nil && now.Before(*g.DecisionDeadline)
}

// Confirm model accepts the reached goal
func (g *DonationGoal) Confirm(now time.Time) error {
	if g.Status != GoalReached {
		return errprocess.New(errprocess.CodeGoalNotActive, "the donation goal has not been reached")
	}
	if !g.WindowOpen(now) {
		return errprocess.ErrDecisionWindowClosed
	}
	g.Status = GoalConfirmed
	g.DecidedAt = &now
	return nil
}

// Reject model declines, allowed while active or reached
func (g *DonationGoal) Reject(now time.Time) error {
	if !g.IsOpen() {
		return errprocess.ErrGoalNotActive
	}
	g.Status = GoalRejected
	g.DecidedAt = &now
	return nil
}

// Expire reached goal whose window elapsed without a decision
func (g *DonationGoal) Expire(now time.Time) bool {
	if g.Status != GoalReached || g.WindowOpen(now) {
		return false
	}
	g.Status = GoalExpired
	g.DecidedAt = &now
	return true
}

// Outstanding contributions still owed back
func (g *DonationGoal) Outstanding() []Contribution {
	if !g.OwesRefunds() {
		return nil
	}
	var out []Contribution
	for _, c := range g.Contributions {
		if c.RefundedAt == nil {
			out = append(out, c)
		}
	}
	return out
}

// Refunded sum of the contributions already given back
func (g *DonationGoal) Refunded() int64 {
	var sum int64
	for _, c := range g.Contributions {
		if c.RefundedAt != nil {
			sum += c.Amount
		}
	}
	return sum
}

// MarkRefunded refund of contribution id applied
func (g *DonationGoal) MarkRefunded(id string, now time.Time) {
	for i := range g.Contributions {
		if g.Contributions[i].ID == id && g.Contributions[i].RefundedAt == nil {
			at := now
			g.Contributions[i].RefundedAt = &at
			g.Contributions[i].LastRefundError = ""
		}
	}
}

// MarkRefundFailed refund of contribution id still outstanding after attempts tries
func (g *DonationGoal) MarkRefundFailed(id string, attempts int, cause error) {
	for i := range g.Contributions {
		if g.Contributions[i].ID == id {
			g.Contributions[i].RefundAttempts += attempts
			g.Contributions[i].LastRefundError = cause.Error()
		}
	}
}

// Clone deep copy
func (g *DonationGoal) Clone() *DonationGoal {
	cp := *g
	cp.Contributions = make([]Contribution, len(g.Contributions))
	for i, c := range g.Contributions {
		if c.RefundedAt != nil {
			t := *c.RefundedAt
			c.RefundedAt = &t
		}
		cp.Contributions[i] = c
	}
	cp.ReachedAt = copyTime(g.ReachedAt)
	cp.DecisionDeadline = copyTime(g.DecisionDeadline)
	cp.DecidedAt = copyTime(g.DecidedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// GoalView payload of goal events
type GoalView struct {
	*DonationGoal
	Refunded    int64  `json:"refunded"`
	Outstanding int    `json:"outstanding"`
	Prompt      string `json:"prompt,omitempty"`
}

// View event payload
func (g *DonationGoal) View() GoalView {
	v := GoalView{DonationGoal: g.Clone(), Refunded: g.Refunded(), Outstanding: len(g.Outstanding())}
	if g.Status == GoalConfirmed {
		v.Prompt = GoPrompt
	}
	return v
}

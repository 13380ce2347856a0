package domain

import (
	"sort"
	"strings"
	"time"

	errprocess "live_session_service/pkg/err"
)

// CandidateCount a poll always has exactly this many candidates
const CandidateCount = 3

// PollStatus poll status
type PollStatus string

const (
	PollActive PollStatus = "active"
	PollEnded  PollStatus = "ended"
)

// Poll timed vote in a room, at most one active per room
type Poll struct {
	ID           string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RoomID       string           `gorm:"index;type:varchar(64)" json:"room_id"`
	HostID       string           `json:"host_id"`
	CandidateIDs []string         `gorm:"serializer:json" json:"candidate_ids"`
	Tally        map[string]int64 `gorm:"serializer:json" json:"tally"`
	ExpiresAt    time.Time        `gorm:"index" json:"expires_at"`
	Status       PollStatus       `gorm:"type:varchar(16);index" json:"status"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
	Version      int64            `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
}

// PollVote one vote, (PollID, VoterID) is the primary key so a second vote cannot be stored
type PollVote struct {
	PollID      string    `gorm:"primaryKey;type:varchar(64)" json:"poll_id"`
	VoterID     string    `gorm:"primaryKey;type:varchar(64)" json:"voter_id"`
	CandidateID string    `json:"candidate_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewPoll validate candidates and build an active poll
func NewPoll(id, roomID, hostID string, candidates []string, now time.Time, duration time.Duration) (*Poll, error) {
	if len(candidates) != CandidateCount {
		return nil, errprocess.ErrInvalidCandidateCount
	}
	seen := make(map[string]struct{}, CandidateCount)
	tally := make(map[string]int64, CandidateCount)
	ids := make([]string, 0, CandidateCount)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, errprocess.ErrInvalidCandidateCount
		}
		if _, dup := seen[c]; dup {
			return nil, errprocess.ErrInvalidCandidateCount
		}
		seen[c] = struct{}{}
		tally[c] = 0
		ids = append(ids, c)
	}
	return &Poll{
		ID:           id,
		RoomID:       roomID,
		HostID:       hostID,
		CandidateIDs: ids,
		Tally:        tally,
		ExpiresAt:    now.Add(duration),
		Status:       PollActive,
		Version:      1,
		CreatedAt:    now,
	}, nil
}

// IsOpen active and now is before expiresAt
func (p *Poll) IsOpen(now time.Time) bool {
	return p.Status == PollActive && now.Before(p.ExpiresAt)
}

// Expired still marked active but past its deadline
func (p *Poll) Expired(now time.Time) bool {
	return p.Status == PollActive && !now.Before(p.ExpiresAt)
}

// HasCandidate candidate is part of the poll
func (p *Poll) HasCandidate(candidateID string) bool {
	for _, c := range p.CandidateIDs {
		if c == candidateID {
			return true
		}
	}
	return false
}

// Cast count one vote, the caller guarantees the voter has not voted yet
func (p *Poll) Cast(candidateID string, now time.Time) error {
	if !p.IsOpen(now) {
		return errprocess.ErrPollClosed
	}
	if !p.HasCandidate(candidateID) {
		return errprocess.ErrInvalidCandidate
	}
	if p.Tally == nil {
		p.Tally = make(map[string]int64, CandidateCount)
	}
	p.Tally[candidateID]++
	return nil
}

// End freeze the tally
func (p *Poll) End(now time.Time) bool {
	if p.Status != PollActive {
		return false
	}
	p.Status = PollEnded
	ended := now
	// 到期後才結算的, 結束時間以到期為準
	if now.After(p.ExpiresAt) {
		ended = p.ExpiresAt
	}
	p.EndedAt = &ended
	return true
}

// Leaders every candidate tied at the highest count, in candidate order. Ties are reported as is.
func (p *Poll) Leaders() []string {
	var (
		best    int64 = -1
		leaders []string
	)
	for _, c := range p.CandidateIDs {
		n := p.Tally[c]
		switch {
		case n > best:
			best = n
			leaders = []string{c}
		case n == best:
			leaders = append(leaders, c)
		}
	}
	return leaders
}

// Total number of votes
func (p *Poll) Total() int64 {
	var sum int64
	for _, n := range p.Tally {
		sum += n
	}
	return sum
}

// Clone deep copy
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.CandidateIDs = append([]string(nil), p.CandidateIDs...)
	cp.Tally = make(map[string]int64, len(p.Tally))
	for k, v := range p.Tally {
		cp.Tally[k] = v
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// PollView payload of poll events: full tally snapshot plus leaders
type PollView struct {
	*Poll
	Leaders []string `json:"leaders"`
	Total   int64    `json:"total"`
}

// View event payload
func (p *Poll) View() PollView {
	return PollView{Poll: p.Clone(), Leaders: p.Leaders(), Total: p.Total()}
}

// SortByCreated newest first
func SortByCreated(polls []Poll) {
	sort.Slice(polls, func(i, j int) bool { return polls[i].CreatedAt.After(polls[j].CreatedAt) })
}

package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/poll/domain"
	"live_session_service/internal/poll/repository"
	roomapp "live_session_service/internal/room/app"
	roomdomain "live_session_service/internal/room/domain"
	roomrepo "live_session_service/internal/room/repository"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollFixture struct {
	uc         *PollUseCase
	moderation *roomapp.ModerationUseCase
	bus        *recordingBus
	room       *roomdomain.Room
	clock      time.Time
}

func newPollFixture(t *testing.T) *pollFixture {
	t.Helper()
	logger.SetNewNop()
	ctx := context.Background()

	rooms := roomrepo.NewMemoryRoomRepository()
	records := roomrepo.NewMemoryModerationRepository()
	roomBus := &recordingBus{}
	moderation := roomapp.NewModerationUseCase(rooms, records, roomBus)
	roomUC := roomapp.NewRoomUseCase(rooms, records, moderation, roomBus)
	room, err := roomUC.StartStream(ctx, "host", roomdomain.StartStreamReq{Title: "poll night"})
	require.NoError(t, err)

	f := &pollFixture{moderation: moderation, bus: &recordingBus{}, room: room, clock: time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)}
	f.uc = NewPollUseCase(repository.NewMemoryPollRepository(), roomUC, moderation, f.bus, config.PollConfig{MaxDuration: time.Hour})
	f.uc.now = func() time.Time { return f.clock }
	return f
}

func (f *pollFixture) start(t *testing.T) *domain.Poll {
	t.Helper()
	p, err := f.uc.StartPoll(context.Background(), "host", f.room.ID, []string{"X", "Y", "Z"}, 15*time.Minute)
	require.NoError(t, err)
	return p
}

func TestPoll_ScenarioC(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	p := f.start(t)

	assert.Equal(t, domain.PollActive, p.Status)
	assert.Equal(t, f.clock.Add(15*time.Minute), p.ExpiresAt)

	voted, err := f.uc.Vote(ctx, "u", p.ID, "X")
	require.NoError(t, err)
	assert.Equal(t, int64(1), voted.Tally["X"])

	_, err = f.uc.Vote(ctx, "u", p.ID, "Y")
	assert.ErrorIs(t, err, errprocess.ErrAlreadyVoted)

	got, err := f.uc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 1, "Y": 0, "Z": 0}, got.Tally)

	ballot, err := f.uc.VoteOf(ctx, p.ID, "u")
	require.NoError(t, err)
	require.NotNil(t, ballot)
	assert.Equal(t, "X", ballot.CandidateID)

	tallies := f.bus.ofKind(eventdomain.KindPollTally)
	require.Len(t, tallies, 1)
	assert.Equal(t, eventdomain.StreamPoll(p.ID), tallies[0].stream)
	assert.Equal(t, []string{"X"}, tallies[0].view.Leaders)
}

func TestPoll_StartValidation(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)

	cases := []struct {
		name       string
		caller     string
		candidates []string
		duration   time.Duration
		code       errprocess.Code
	}{
		{"觀眾不能開投票", "viewer", []string{"a", "b", "c"}, time.Minute, errprocess.CodeForbidden},
		{"兩個候選", "host", []string{"a", "b"}, time.Minute, errprocess.CodeInvalidCandidateCount},
		{"重複候選", "host", []string{"a", "a", "b"}, time.Minute, errprocess.CodeInvalidCandidateCount},
		{"空白候選", "host", []string{"a", " ", "b"}, time.Minute, errprocess.CodeInvalidCandidateCount},
		{"時間為零", "host", []string{"a", "b", "c"}, 0, errprocess.CodeInvalidRoomState},
		{"超過上限", "host", []string{"a", "b", "c"}, 2 * time.Hour, errprocess.CodeInvalidRoomState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.StartPoll(ctx, tc.caller, f.room.ID, tc.candidates, tc.duration)
			assert.Equal(t, tc.code, errprocess.CodeOf(err))
		})
	}
	assert.Empty(t, f.bus.ofKind(eventdomain.KindPollStarted))
}

func TestPoll_OneActivePerRoom(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	first := f.start(t)

	_, err := f.uc.StartPoll(ctx, "host", f.room.ID, []string{"a", "b", "c"}, time.Minute)
	assert.ErrorIs(t, err, errprocess.ErrPollAlreadyActive)

	t.Run("過期的投票先結算再開新的", func(t *testing.T) {
		f.clock = f.clock.Add(16 * time.Minute)
		second, err := f.uc.StartPoll(ctx, "host", f.room.ID, []string{"a", "b", "c"}, time.Minute)
		require.NoError(t, err)

		old, err := f.uc.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PollEnded, old.Status)
		require.NotNil(t, old.EndedAt)
		assert.Equal(t, first.ExpiresAt, *old.EndedAt)

		latest, err := f.uc.Latest(ctx, f.room.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
		assert.Len(t, f.bus.ofKind(eventdomain.KindPollEnded), 1)
	})
}

func TestPoll_VoteRejections(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	p := f.start(t)

	t.Run("不存在的候選", func(t *testing.T) {
		_, err := f.uc.Vote(ctx, "u1", p.ID, "W")
		assert.ErrorIs(t, err, errprocess.ErrInvalidCandidate)
		// 無效的票不佔用名額
		_, err = f.uc.Vote(ctx, "u1", p.ID, "Y")
		assert.NoError(t, err)
	})

	t.Run("被 ban 的使用者", func(t *testing.T) {
		_, err := f.moderation.SetBanned(ctx, "host", f.room.ID, "troll", true)
		require.NoError(t, err)
		_, err = f.uc.Vote(ctx, "troll", p.ID, "X")
		assert.ErrorIs(t, err, errprocess.ErrBanned)
	})

	t.Run("到期後拒絕", func(t *testing.T) {
		f.clock = p.ExpiresAt
		_, err := f.uc.Vote(ctx, "u2", p.ID, "X")
		assert.ErrorIs(t, err, errprocess.ErrPollClosed)
	})

	t.Run("不存在的投票", func(t *testing.T) {
		_, err := f.uc.Vote(ctx, "u3", "missing", "X")
		assert.ErrorIs(t, err, errprocess.ErrPollNotFound)
	})

	got, err := f.uc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Total())
}

func TestPoll_CancelFreezesVotes(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	p := f.start(t)
	_, err := f.uc.Vote(ctx, "u1", p.ID, "Z")
	require.NoError(t, err)

	_, err = f.uc.CancelPoll(ctx, "u1", p.ID)
	assert.ErrorIs(t, err, errprocess.ErrNotHost)

	ended, err := f.uc.CancelPoll(ctx, "host", p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PollEnded, ended.Status)
	assert.Equal(t, []string{"Z"}, ended.Leaders())

	_, err = f.uc.Vote(ctx, "u2", p.ID, "X")
	assert.ErrorIs(t, err, errprocess.ErrPollClosed)

	_, err = f.uc.CancelPoll(ctx, "host", p.ID)
	assert.ErrorIs(t, err, errprocess.ErrPollClosed)

	events := f.bus.ofKind(eventdomain.KindPollEnded)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].view.Total)
}

func TestPoll_FinalizeDue(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	p := f.start(t)

	n, err := f.uc.FinalizeDue(ctx, f.clock.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.uc.FinalizeDue(ctx, p.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.uc.FinalizeDue(ctx, p.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events := f.bus.ofKind(eventdomain.KindPollEnded)
	require.Len(t, events, 1)
	assert.Greater(t, events[0].version, p.Version)
}

func TestPoll_LeadersReportTies(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	p := f.start(t)

	for voter, candidate := range map[string]string{"a": "X", "b": "Z", "c": "X", "d": "Z"} {
		_, err := f.uc.Vote(ctx, voter, p.ID, candidate)
		require.NoError(t, err)
	}
	got, err := f.uc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Z"}, got.Leaders())
}

func TestPoll_ConcurrentVotes(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t)
	p := f.start(t)

	const voters = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dupes    int
	)
	// 每個人同時投兩票, 只能有一票成立
	for i := 0; i < voters; i++ {
		for _, c := range []string{"X", "Y"} {
			wg.Add(1)
			go func(voter, candidate string) {
				defer wg.Done()
				_, err := f.uc.Vote(ctx, voter, p.ID, candidate)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case errprocess.CodeOf(err) == errprocess.CodeAlreadyVoted:
					dupes++
				}
			}(fmt.Sprintf("v%d", i), c)
		}
	}
	wg.Wait()

	assert.Equal(t, voters, accepted)
	assert.Equal(t, voters, dupes)

	got, err := f.uc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(voters), got.Total())
	assert.Equal(t, p.Version+voters, got.Version)
}

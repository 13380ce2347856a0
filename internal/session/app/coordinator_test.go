package app

import (
	"context"
	"math"
	"testing"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	giftdomain "live_session_service/internal/gift/domain"
	goaldomain "live_session_service/internal/goal/domain"
	polldomain "live_session_service/internal/poll/domain"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/internal/session/domain"
	errprocess "live_session_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestCoordinator_Snapshot(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")
	fund(t, c, map[string]int64{"alice": 1000})

	poll := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.StartPoll), CandidateIDs: []string{"x", "y", "z"}, DurationSecs: 900})
	require.True(t, poll.Success, poll.Error)
	pollID := poll.Payload.(polldomain.PollView).ID

	require.True(t, c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.CastVote), PollID: pollID, CandidateID: "x"}).Success)
	require.True(t, c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.CreateGoal), Amount: 1000}).Success)
	require.True(t, c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.SendMessage), Content: "hi"}).Success)

	t.Run("觀眾看到自己的投票", func(t *testing.T) {
		snap, err := c.Snapshot(ctx, room.ID, "alice")
		require.NoError(t, err)

		assert.Equal(t, room.ID, snap.Room.ID)
		require.NotNil(t, snap.Poll)
		assert.Equal(t, int64(1), snap.Poll.Tally["x"])
		require.NotNil(t, snap.MyVote)
		assert.Equal(t, "x", snap.MyVote.CandidateID)
		require.NotNil(t, snap.Goal)
		assert.Equal(t, int64(1000), snap.Goal.TargetAmount)
		require.Len(t, snap.Chat, 1)
		assert.Equal(t, "hi", snap.Chat[0].Content)

		streams := map[string]int64{}
		for _, v := range snap.Versions {
			streams[v.Stream] = v.Version
		}
		assert.Equal(t, snap.Room.Version, streams[eventdomain.StreamRoom])
		assert.Equal(t, snap.Poll.Version, streams[eventdomain.StreamPoll(pollID)])
		assert.Contains(t, streams, eventdomain.StreamGoal(snap.Goal.ID))
	})

	t.Run("沒投票的觀眾", func(t *testing.T) {
		snap, err := c.Snapshot(ctx, room.ID, "bob")
		require.NoError(t, err)
		assert.Nil(t, snap.MyVote)
		assert.Nil(t, snap.Moderation)
	})

	t.Run("房間不存在", func(t *testing.T) {
		_, err := c.Snapshot(ctx, "missing", "alice")
		assert.ErrorIs(t, err, errprocess.ErrRoomNotFound)
	})
}

func TestCoordinator_SnapshotReadGate(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)

	t.Run("被 ban 的使用者拿不到 snapshot", func(t *testing.T) {
		room := liveRoom(t, c, "host")
		require.True(t, c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.SendMessage), Content: "secret plan"}).Success)
		_, err := c.Moderation.SetBanned(ctx, "host", room.ID, "mallory", true)
		require.NoError(t, err)

		snap, err := c.Snapshot(ctx, room.ID, "mallory")
		assert.ErrorIs(t, err, errprocess.ErrBanned)
		assert.Nil(t, snap)

		resp := c.Execute(ctx, as("mallory"), room.ID, domain.WSRequest{Action: string(domain.Resync)})
		assert.False(t, resp.Success)
		assert.Equal(t, string(errprocess.CodeForbidden), resp.Code)
		assert.Nil(t, resp.Payload)
	})

	t.Run("私人房間待核准的申請者", func(t *testing.T) {
		room, err := c.Rooms.StartStream(ctx, "host2", roomdomain.StartStreamReq{Title: "members only", Visibility: roomdomain.VisibilityPrivate})
		require.NoError(t, err)
		room, err = c.Rooms.GoLive(ctx, "host2", room.ID)
		require.NoError(t, err)
		require.True(t, c.Execute(ctx, as("host2"), room.ID, domain.WSRequest{Action: string(domain.SendMessage), Content: "members only"}).Success)

		_, err = c.Moderation.RequestJoin(ctx, "eve", room.ID, "")
		require.NoError(t, err)
		_, err = c.Snapshot(ctx, room.ID, "eve")
		assert.ErrorIs(t, err, errprocess.ErrMembershipPending)

		_, err = c.Moderation.Approve(ctx, "host2", room.ID, "eve")
		require.NoError(t, err)
		snap, err := c.Snapshot(ctx, room.ID, "eve")
		require.NoError(t, err)
		require.Len(t, snap.Chat, 1)
		assert.Equal(t, "members only", snap.Chat[0].Content)
	})
}

func TestCoordinator_ExecuteCodes(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")
	fund(t, c, map[string]int64{"alice": 100, "bob": 1000})
	require.NoError(t, c.Ledger.OpenWallet(ctx, "host"))

	tests := []struct {
		name   string
		caller string
		req    domain.WSRequest
		code   errprocess.Code
	}{
		{"非主播開拍賣", "alice", domain.WSRequest{Action: string(domain.OpenAuction), StartingPrice: 500, DurationSecs: 60}, errprocess.CodeForbidden},
		{"非主播開投票", "alice", domain.WSRequest{Action: string(domain.StartPoll), CandidateIDs: []string{"a", "b", "c"}, DurationSecs: 60}, errprocess.CodeForbidden},
		{"候選人數量錯誤", "host", domain.WSRequest{Action: string(domain.StartPoll), CandidateIDs: []string{"a", "b"}, DurationSecs: 60}, errprocess.CodeOf(errprocess.ErrInvalidCandidateCount)},
		{"送禮給其他觀眾", "alice", domain.WSRequest{Action: string(domain.SendGift), GiftID: "rose", ReceiverID: "bob"}, ""},
		{"空白訊息", "alice", domain.WSRequest{Action: string(domain.SendMessage), Content: "   "}, errprocess.CodeOf(errprocess.ErrInvalidMessage)},
		{"拍賣時間溢位", "host", domain.WSRequest{Action: string(domain.OpenAuction), StartingPrice: 500, DurationSecs: math.MaxInt64}, errprocess.CodeInvalidRoomState},
		{"投票時間溢位", "host", domain.WSRequest{Action: string(domain.StartPoll), CandidateIDs: []string{"a", "b", "c"}, DurationSecs: math.MaxInt64/int64(time.Second) + 1}, errprocess.CodeInvalidRoomState},
		{"未知動作", "alice", domain.WSRequest{Action: "teleport"}, errprocess.CodeInvalidRoomState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := c.Execute(ctx, as(tt.caller), room.ID, tt.req)
			if tt.code == "" {
				assert.True(t, resp.Success, resp.Error)
				return
			}
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.code), resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.Nil(t, resp.Payload)
		})
	}

	t.Run("RequestID 原樣帶回", func(t *testing.T) {
		resp := c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.Like), RequestID: "r-1"})
		assert.True(t, resp.Success)
		assert.Equal(t, "r-1", resp.RequestID)
		assert.Equal(t, string(domain.Like), resp.Action)
	})

	t.Run("送禮扣款與入帳", func(t *testing.T) {
		resp := c.Execute(ctx, as("bob"), room.ID, domain.WSRequest{Action: string(domain.SendGift), GiftID: "rose"})
		require.True(t, resp.Success, resp.Error)
		gift := resp.Payload.(*giftdomain.Gift)
		assert.Equal(t, "host", gift.ReceiverID)

		bob, _ := c.Ledger.Balance(ctx, "bob")
		host, _ := c.Ledger.Balance(ctx, "host")
		assert.Equal(t, int64(980), bob)
		assert.Equal(t, int64(20), host)
	})
}

func TestCoordinator_AuctionScenarioB(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")

	open := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.OpenAuction), StartingPrice: 500, DurationSecs: 600})
	require.True(t, open.Success, open.Error)

	bid := func(who string, amount int64) domain.WSResponse {
		return c.Execute(ctx, as(who), room.ID, domain.WSRequest{Action: string(domain.PlaceBid), Amount: amount})
	}

	resp := bid("alice", 500)
	assert.Equal(t, string(errprocess.CodeOf(errprocess.ErrBidTooLow)), resp.Code)

	resp = bid("alice", 600)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, int64(600), resp.Payload.(*roomdomain.Room).CurrentBid)

	resp = bid("bob", 550)
	assert.Equal(t, string(errprocess.CodeOf(errprocess.ErrBidTooLow)), resp.Code)

	current, err := c.Rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), current.CurrentBid)
	assert.Equal(t, "alice", current.TopBidderID)
}

func TestCoordinator_ModerationMidSession(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")

	send := func() domain.WSResponse {
		return c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.SendMessage), Content: "hello"})
	}
	require.True(t, send().Success)

	t.Run("禁言後不能發言但能按讚", func(t *testing.T) {
		resp := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.MuteMember), MemberID: "alice"})
		require.True(t, resp.Success, resp.Error)

		assert.Equal(t, string(errprocess.CodeOf(errprocess.ErrMuted)), send().Code)
		assert.True(t, c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.Like)}).Success)
	})

	t.Run("解除禁言", func(t *testing.T) {
		resp := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.MuteMember), MemberID: "alice", Enabled: boolPtr(false)})
		require.True(t, resp.Success, resp.Error)
		assert.True(t, send().Success)
	})

	t.Run("封鎖後所有動作被拒", func(t *testing.T) {
		resp := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.BanMember), MemberID: "alice"})
		require.True(t, resp.Success, resp.Error)
		assert.True(t, resp.Payload.(roomdomain.ModerationView).IsBanned)

		assert.Equal(t, string(errprocess.CodeOf(errprocess.ErrBanned)), send().Code)
		assert.Equal(t, string(errprocess.CodeOf(errprocess.ErrBanned)),
			c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.PlaceBid), Amount: 10}).Code)
	})

	t.Run("非主播不能管理", func(t *testing.T) {
		resp := c.Execute(ctx, as("bob"), room.ID, domain.WSRequest{Action: string(domain.BanMember), MemberID: "host"})
		assert.Equal(t, string(errprocess.CodeForbidden), resp.Code)
	})
}

func TestCoordinator_GoalRejectRefunds(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")
	fund(t, c, map[string]int64{"alice": 600, "bob": 500})

	created := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.CreateGoal), Amount: 1000})
	require.True(t, created.Success, created.Error)
	goalID := created.Payload.(goaldomain.GoalView).ID

	require.True(t, c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.FundGoal), GoalID: goalID, Amount: 600}).Success)
	reached := c.Execute(ctx, as("bob"), room.ID, domain.WSRequest{Action: string(domain.FundGoal), GoalID: goalID, Amount: 500})
	require.True(t, reached.Success, reached.Error)
	assert.Equal(t, goaldomain.GoalReached, reached.Payload.(goaldomain.GoalView).Status)

	t.Run("只有 model 能決定", func(t *testing.T) {
		resp := c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.RejectGoal), GoalID: goalID})
		assert.Equal(t, string(errprocess.CodeOf(errprocess.ErrNotModel)), resp.Code)
	})

	rejected := c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.RejectGoal), GoalID: goalID})
	require.True(t, rejected.Success, rejected.Error)

	alice, _ := c.Ledger.Balance(ctx, "alice")
	bob, _ := c.Ledger.Balance(ctx, "bob")
	assert.Equal(t, int64(600), alice)
	assert.Equal(t, int64(500), bob)

	goal, err := c.Goals.Get(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), goal.Refunded())
}

func TestCoordinator_EndStream(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")
	require.True(t, c.Execute(ctx, as("alice"), room.ID, domain.WSRequest{Action: string(domain.SendMessage), Content: "bye"}).Success)

	assert.ErrorIs(t, c.EndStream(ctx, "alice", room.ID), errprocess.ErrNotHost)
	require.NoError(t, c.EndStream(ctx, "host", room.ID))

	_, err := c.Rooms.Get(ctx, room.ID)
	assert.ErrorIs(t, err, errprocess.ErrRoomNotFound)

	msgs, err := c.Chat.Recent(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCoordinator(t)
	room := liveRoom(t, c, "host")

	require.True(t, c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.OpenAuction), StartingPrice: 10, DurationSecs: 60}).Success)
	require.True(t, c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.StartPoll), CandidateIDs: []string{"a", "b", "c"}, DurationSecs: 60}).Success)
	require.True(t, c.Execute(ctx, as("host"), room.ID, domain.WSRequest{Action: string(domain.CreateGoal), Amount: 100}).Success)

	s := NewSweeper(c, "")

	t.Run("尚未到期", func(t *testing.T) {
		assert.Equal(t, SweepReport{}, s.Sweep(ctx))
	})

	t.Run("拍賣與投票到期", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		report := s.Sweep(ctx)
		assert.Equal(t, 1, report.AuctionsClosed)
		assert.Equal(t, 1, report.PollsEnded)
		// 未達標的目標不受 decision window 影響
		assert.Equal(t, 0, report.GoalsExpired)

		current, err := c.Rooms.Get(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, roomdomain.AuctionClosed, current.AuctionStatus)

		poll, err := c.Polls.Latest(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, polldomain.PollEnded, poll.Status)
	})

	t.Run("重跑不重複處理", func(t *testing.T) {
		assert.Equal(t, SweepReport{}, s.Sweep(ctx))
	})
}

func TestSweeper_Run(t *testing.T) {
	c := newMemoryCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())

	t.Run("錯誤的 cron 表達式", func(t *testing.T) {
		assert.Error(t, NewSweeper(c, "every five seconds").Run(ctx))
	})

	done := make(chan error, 1)
	go func() { done <- NewSweeper(c, "@every 10ms").Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

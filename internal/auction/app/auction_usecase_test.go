package app

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"live_session_service/internal/auction/domain"
	eventdomain "live_session_service/internal/eventbus/domain"
	roomapp "live_session_service/internal/room/app"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/internal/room/repository"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type auctionFixture struct {
	auction    *AuctionUseCase
	rooms      repository.RoomRepository
	moderation *roomapp.ModerationUseCase
	notifier   *MockNotifier
	bus        *recordingBus
	room       *roomdomain.Room
	clock      time.Time
}

func newAuctionFixture(t *testing.T, cfg config.AuctionConfig) *auctionFixture {
	t.Helper()
	logger.SetNewNop()
	ctx := context.Background()

	rooms := repository.NewMemoryRoomRepository()
	records := repository.NewMemoryModerationRepository()
	bus := &recordingBus{}
	moderation := roomapp.NewModerationUseCase(rooms, records, bus)
	roomUC := roomapp.NewRoomUseCase(rooms, records, moderation, bus)

	room, err := roomUC.StartStream(ctx, "host", roomdomain.StartStreamReq{Title: "vintage camera"})
	require.NoError(t, err)
	room, err = roomUC.GoLive(ctx, "host", room.ID)
	require.NoError(t, err)

	notifier := new(MockNotifier)
	f := &auctionFixture{
		rooms:      rooms,
		moderation: moderation,
		notifier:   notifier,
		bus:        bus,
		room:       room,
		clock:      time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC),
	}
	f.auction = NewAuctionUseCase(rooms, moderation, bus, notifier, nil, cfg)
	f.auction.now = func() time.Time { return f.clock }
	return f
}

func TestAuction_ScenarioB(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 1})
	f.notifier.On("Notify", mock.Anything, "alice", "You have been outbid", mock.Anything).Return().Once()

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 500, 10*time.Minute)
	require.NoError(t, err)

	_, err = f.auction.PlaceBid(ctx, "alice", f.room.ID, 500)
	assert.ErrorIs(t, err, errprocess.ErrBidTooLow)
	assert.Equal(t, "bid too low", errprocess.Reason(err))

	room, err := f.auction.PlaceBid(ctx, "alice", f.room.ID, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), room.CurrentBid)
	assert.Equal(t, "alice", room.TopBidderID)

	_, err = f.auction.PlaceBid(ctx, "bob", f.room.ID, 550)
	assert.ErrorIs(t, err, errprocess.ErrBidTooLow)

	room, err = f.auction.PlaceBid(ctx, "bob", f.room.ID, 601)
	require.NoError(t, err)
	assert.Equal(t, "bob", room.TopBidderID)

	assert.Equal(t, 2, f.bus.count(eventdomain.KindBidAccepted))
	f.notifier.AssertExpectations(t)
}

func TestAuction_FirstBidAtStartingPrice(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 1, FirstBidAtStartingPrice: true})

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 500, time.Minute)
	require.NoError(t, err)

	room, err := f.auction.PlaceBid(ctx, "alice", f.room.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), room.CurrentBid)

	_, err = f.auction.PlaceBid(ctx, "alice", f.room.ID, 500)
	assert.ErrorIs(t, err, errprocess.ErrBidTooLow)
}

func TestAuction_MinIncrement(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 50})

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 100, time.Minute)
	require.NoError(t, err)

	_, err = f.auction.PlaceBid(ctx, "alice", f.room.ID, 149)
	assert.ErrorIs(t, err, errprocess.ErrBidTooLow)
	_, err = f.auction.PlaceBid(ctx, "alice", f.room.ID, 150)
	assert.NoError(t, err)
}

func TestAuction_BidNearMaxInt64(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 1})

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 100, time.Minute)
	require.NoError(t, err)

	room, err := f.auction.PlaceBid(ctx, "alice", f.room.ID, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), room.CurrentBid)

	t.Run("最高出價後任何出價都過低", func(t *testing.T) {
		for _, amount := range []int64{1, 101, math.MaxInt64} {
			_, err := f.auction.PlaceBid(ctx, "bob", f.room.ID, amount)
			assert.ErrorIs(t, err, errprocess.ErrBidTooLow)
		}
		room, err := f.rooms.Get(ctx, f.room.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), room.CurrentBid)
		assert.Equal(t, "alice", room.TopBidderID)
	})
}

func TestAuctionPolicy_AdmitsLargeIncrement(t *testing.T) {
	p := domain.Policy{MinIncrement: math.MaxInt64}
	room := &roomdomain.Room{StartingPrice: 10}
	assert.False(t, p.Admits(room, math.MaxInt64))
	room.StartingPrice = 0
	assert.True(t, p.Admits(room, math.MaxInt64))
}

func TestAuction_DeadlineIsServerSide(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 1})
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 100, time.Minute)
	require.NoError(t, err)

	f.clock = f.clock.Add(59 * time.Second)
	_, err = f.auction.PlaceBid(ctx, "alice", f.room.ID, 200)
	require.NoError(t, err)

	// 到期瞬間即拒絕, 不依賴 sweeper
	f.clock = f.clock.Add(time.Second)
	_, err = f.auction.PlaceBid(ctx, "bob", f.room.ID, 1000)
	assert.ErrorIs(t, err, errprocess.ErrAuctionClosed)

	closed, err := f.auction.CloseDue(ctx, f.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, f.bus.count(eventdomain.KindAuctionClosed))
	f.notifier.AssertCalled(t, "Notify", mock.Anything, "alice", "You won the auction", mock.Anything)

	// closed twice is a no-op
	closed, err = f.auction.CloseDue(ctx, f.clock)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	_, err = f.auction.PlaceBid(ctx, "bob", f.room.ID, 2000)
	assert.ErrorIs(t, err, errprocess.ErrAuctionClosed)
}

func TestAuction_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 1, MaxDuration: time.Hour})

	t.Run("尚未開拍", func(t *testing.T) {
		_, err := f.auction.PlaceBid(ctx, "alice", f.room.ID, 10)
		assert.ErrorIs(t, err, errprocess.ErrAuctionNotOpen)
	})

	t.Run("只有主播能開拍", func(t *testing.T) {
		_, err := f.auction.OpenAuction(ctx, "alice", f.room.ID, 10, time.Minute)
		assert.ErrorIs(t, err, errprocess.ErrNotHost)
	})

	t.Run("超過最長時間", func(t *testing.T) {
		_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 10, 2*time.Hour)
		assert.Equal(t, errprocess.CodeInvalidRoomState, errprocess.CodeOf(err))
	})

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 10, time.Minute)
	require.NoError(t, err)

	t.Run("拍賣進行中不能重開", func(t *testing.T) {
		_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 10, time.Minute)
		assert.Equal(t, errprocess.CodeInvalidRoomState, errprocess.CodeOf(err))
	})

	t.Run("主播不能出價", func(t *testing.T) {
		_, err := f.auction.PlaceBid(ctx, "host", f.room.ID, 100)
		assert.Equal(t, errprocess.CodeForbidden, errprocess.CodeOf(err))
	})

	t.Run("被封鎖立即拒絕", func(t *testing.T) {
		_, err := f.moderation.SetBanned(ctx, "host", f.room.ID, "troll", true)
		require.NoError(t, err)

		_, err = f.auction.PlaceBid(ctx, "troll", f.room.ID, 1_000_000)
		assert.ErrorIs(t, err, errprocess.ErrBanned)
	})
}

func TestAuction_ConcurrentBidsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	f := newAuctionFixture(t, config.AuctionConfig{MinIncrement: 1})
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	_, err := f.auction.OpenAuction(ctx, "host", f.room.ID, 0, time.Hour)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*roomdomain.Room
	)
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			room, err := f.auction.PlaceBid(ctx, "bidder", f.room.ID, amount)
			if err == nil {
				mu.Lock()
				accepted = append(accepted, room)
				mu.Unlock()
			}
		}(int64(i * 10))
	}
	wg.Wait()

	require.NotEmpty(t, accepted)
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Version < accepted[j].Version })
	for i := 1; i < len(accepted); i++ {
		assert.Greater(t, accepted[i].CurrentBid, accepted[i-1].CurrentBid)
	}
	assert.Equal(t, int64(400), accepted[len(accepted)-1].CurrentBid)
}

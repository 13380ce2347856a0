package app

import (
	"context"
	"testing"
	"time"

	notifyapp "live_session_service/internal/notify/app"
	notifyrepo "live_session_service/internal/notify/repository"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/pkg/config"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/middlewares"

	"github.com/stretchr/testify/require"
)

func testConfig() config.Coordinator {
	cfg := config.Coordinator{
		Auction: config.AuctionConfig{MinIncrement: 1, MaxDuration: time.Hour},
		Refund:  config.RefundConfig{InitialInterval: time.Millisecond, MaxElapsed: 20 * time.Millisecond},
		EventBus: config.EventBusConfig{
			PublishMaxElapsed: 50 * time.Millisecond,
		},
		Gifts: []config.GiftConfig{{ID: "rose", Name: "Rose", IconKey: "gifts/rose.png", Price: 20}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// newMemoryCoordinator every engine on in process stores, the way the memory
// store driver wires them
func newMemoryCoordinator(t testing.TB) *Coordinator {
	t.Helper()
	logger.SetNewNop()

	cfg := testConfig()
	stores := MemoryStores(cfg)
	require.NoError(t, SeedGifts(context.Background(), stores.Gifts, cfg.Gifts))
	return NewCoordinator(stores, notifyapp.NewDispatcher(notifyrepo.NewLogSender(), 64), nil, cfg)
}

// liveRoom open public room of hostID that already went live
func liveRoom(t testing.TB, c *Coordinator, hostID string) *roomdomain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := c.Rooms.StartStream(ctx, hostID, roomdomain.StartStreamReq{Title: "evening show"})
	require.NoError(t, err)
	room, err = c.Rooms.GoLive(ctx, hostID, room.ID)
	require.NoError(t, err)
	return room
}

func fund(t testing.TB, c *Coordinator, balances map[string]int64) {
	t.Helper()
	for owner, amount := range balances {
		require.NoError(t, c.Ledger.TopUp(context.Background(), owner, amount, "seed:"+owner))
	}
}

func as(id string) middlewares.Caller {
	return middlewares.Caller{MemberID: id, DisplayName: id}
}

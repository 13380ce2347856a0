package app

import (
	"context"

	auctionapp "live_session_service/internal/auction/app"
	chatapp "live_session_service/internal/chat/app"
	chatrepo "live_session_service/internal/chat/repository"
	eventapp "live_session_service/internal/eventbus/app"
	eventrepo "live_session_service/internal/eventbus/repository"
	giftapp "live_session_service/internal/gift/app"
	giftdomain "live_session_service/internal/gift/domain"
	giftrepo "live_session_service/internal/gift/repository"
	goalapp "live_session_service/internal/goal/app"
	goalrepo "live_session_service/internal/goal/repository"
	ledgerapp "live_session_service/internal/ledger/app"
	ledgerdomain "live_session_service/internal/ledger/domain"
	ledgerrepo "live_session_service/internal/ledger/repository"
	notifydomain "live_session_service/internal/notify/domain"
	pollapp "live_session_service/internal/poll/app"
	pollrepo "live_session_service/internal/poll/repository"
	roomapp "live_session_service/internal/room/app"
	roomrepo "live_session_service/internal/room/repository"
	"live_session_service/pkg/config"
	"live_session_service/pkg/metrics"
)

// Stores storage and transport behind the engines, one set per store driver
type Stores struct {
	Ledger     ledgerrepo.LedgerRepository
	Alerts     ledgerdomain.AlertSink
	Rooms      roomrepo.RoomRepository
	Moderation roomrepo.ModerationRepository
	Gifts      giftrepo.GiftRepository
	Icons      giftrepo.IconResolver
	Polls      pollrepo.PollRepository
	Goals      goalrepo.GoalRepository
	Chat       chatrepo.MessageRepository
	Transport  eventrepo.Transport
}

// MemoryStores in process stores, a single node only
func MemoryStores(cfg config.Coordinator) Stores {
	return Stores{
		Ledger:     ledgerrepo.NewMemoryLedgerRepository(),
		Alerts:     ledgerrepo.NewLogAlertSink(),
		Rooms:      roomrepo.NewMemoryRoomRepository(),
		Moderation: roomrepo.NewMemoryModerationRepository(),
		Gifts:      giftrepo.NewMemoryGiftRepository(),
		Icons:      giftrepo.NewRawIconResolver(),
		Polls:      pollrepo.NewMemoryPollRepository(),
		Goals:      goalrepo.NewMemoryGoalRepository(),
		Chat:       chatrepo.NewMemoryMessageRepository(),
		Transport:  eventrepo.NewLocalBus(cfg.EventBus.SubscriberBuffer),
	}
}

// NewCoordinator wire every engine on top of s
func NewCoordinator(s Stores, notifier notifydomain.Notifier, m *metrics.Metrics, cfg config.Coordinator) *Coordinator {
	bus := eventapp.NewBus(s.Transport, m, cfg.EventBus.PublishMaxElapsed)
	ledger := ledgerapp.NewLedgerUseCase(s.Ledger, s.Alerts, m, cfg.Refund)

	moderation := roomapp.NewModerationUseCase(s.Rooms, s.Moderation, bus)
	rooms := roomapp.NewRoomUseCase(s.Rooms, s.Moderation, moderation, bus)

	return &Coordinator{
		Rooms:      rooms,
		Moderation: moderation,
		Auctions:   auctionapp.NewAuctionUseCase(s.Rooms, moderation, bus, notifier, m, cfg.Auction),
		Gifts:      giftapp.NewGiftUseCase(s.Gifts, s.Icons, ledger, rooms, moderation, bus, notifier),
		Polls:      pollapp.NewPollUseCase(s.Polls, rooms, moderation, bus, cfg.Poll),
		Goals:      goalapp.NewGoalUseCase(s.Goals, ledger, rooms, moderation, bus, notifier, cfg.Goal),
		Chat:       chatapp.NewMessageUseCase(s.Chat, moderation, bus),
		Ledger:     ledger,
		Bus:        bus,
		Metrics:    m,
	}
}

// SeedGifts upsert the configured gift catalog
func SeedGifts(ctx context.Context, repo giftrepo.GiftRepository, gifts []config.GiftConfig) error {
	kinds := make([]giftdomain.GiftKind, 0, len(gifts))
	for _, g := range gifts {
		kinds = append(kinds, giftdomain.GiftKind{ID: g.ID, Name: g.Name, IconKey: g.IconKey, Price: g.Price})
	}
	if len(kinds) == 0 {
		return nil
	}
	return repo.SeedCatalog(ctx, kinds)
}

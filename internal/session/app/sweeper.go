package app

import (
	"context"
	"time"

	"live_session_service/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepReport what one sweep did
type SweepReport struct {
	AuctionsClosed int
	PollsEnded     int
	GoalsExpired   int
}

// Sweeper enforces server side deadlines: auctions, polls and goal decision
// windows close on the server clock even when nobody sends an intent.
type Sweeper struct {
	coord *Coordinator
	cron  *cron.Cron
	spec  string
	now   func() time.Time
}

// NewSweeper create Sweeper running on spec (cron syntax or @every)
func NewSweeper(coord *Coordinator, spec string) *Sweeper {
	if spec == "" {
		spec = "@every 5s"
	}
	return &Sweeper{
		coord: coord,
		// 上一輪還沒跑完就跳過, 避免同一個 deadline 被並行處理
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec: spec,
		now:  time.Now,
	}
}

// Sweep run every deadline check once
func (s *Sweeper) Sweep(ctx context.Context) SweepReport {
	now := s.now()
	var report SweepReport
	var err error

	if report.AuctionsClosed, err = s.coord.Auctions.CloseDue(ctx, now); err != nil {
		logger.Log.Warn("sweep auctions", zap.Error(err))
	}
	if report.PollsEnded, err = s.coord.Polls.FinalizeDue(ctx, now); err != nil {
		logger.Log.Warn("sweep polls", zap.Error(err))
	}
	if report.GoalsExpired, err = s.coord.Goals.ExpireDue(ctx, now); err != nil {
		logger.Log.Warn("sweep goals", zap.Error(err))
	}

	if report != (SweepReport{}) {
		logger.Log.Info("deadline sweep",
			zap.Int("auctions_closed", report.AuctionsClosed),
			zap.Int("polls_ended", report.PollsEnded),
			zap.Int("goals_expired", report.GoalsExpired),
		)
	}
	return report
}

// Run schedule sweeps until ctx is done, then wait for the running one
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Log.Info("sweeper started", zap.String("spec", s.spec))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	logger.Log.Info("sweeper stopped")
	return nil
}

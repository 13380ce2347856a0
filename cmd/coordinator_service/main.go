package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	notifyapp "live_session_service/internal/notify/app"
	"live_session_service/internal/session/api/router"
	sessionapp "live_session_service/internal/session/app"
	"live_session_service/pkg/config"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/metrics"
	"live_session_service/pkg/middlewares"
	testtool "live_session_service/pkg/test_tool"
	"live_session_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.CoordinatorService, config.EnvConfig.CoordinatorLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Coordinator](config.EnvConfig.CoordinatorService, config.EnvConfig.CoordinatorYAML)
	if config.EnvConfig.CoordinatorPort != "" {
		cfg.Port = config.EnvConfig.CoordinatorPort
	}
	cfg.ApplyDefaults()
	token.SetSecret(cfg.JWT.Secret)
	testtool.StartPprof(cfg.PprofAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 依 store driver 建立儲存層
	var (
		b   *backends
		err error
	)
	switch cfg.Store.Driver {
	case config.StorePostgres:
		b, err = postgresBackends(ctx, cfg)
	case config.StoreMemory:
		b = memoryBackends(cfg)
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		logger.Log.Fatal("init stores failed", zap.String("driver", string(cfg.Store.Driver)), zap.Error(err))
	}
	defer b.close()

	if err := sessionapp.SeedGifts(ctx, b.stores.Gifts, cfg.Gifts); err != nil {
		logger.Log.Fatal("seed gift catalog", zap.Error(err))
	}

	// 2. 組裝 engine
	dispatcher := notifyapp.NewDispatcher(b.sender, 0)
	coord := sessionapp.NewCoordinator(b.stores, dispatcher, metrics.Default(), cfg)
	sweeper := sessionapp.NewSweeper(coord, cfg.Sweeper.Spec)
	wsHandler := sessionapp.NewSessionWebsocketHandler(coord, cfg.RateLimit, cfg.EventBus.DedupSize)

	// 3. Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: config.IsProduction()})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.CoordinatorLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))
	router.RegisterRoutes(r, coord, wsHandler, middlewares.NewKeyedLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))

	// 4. server, sweeper, 推播 worker 一起啟動, 任一個失敗就全部停止
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		addr := cfg.IP + ":" + cfg.Port
		logger.Log.Info("coordinator listening", zap.String("addr", addr), zap.String("store", string(cfg.Store.Driver)))
		return r.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("shutting down")
		return r.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error("coordinator stopped with error", zap.Error(err))
	}
	<-dispatcher.Done()
	logger.Log.Info("coordinator stopped")
}

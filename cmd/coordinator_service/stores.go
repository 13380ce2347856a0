package main

import (
	"context"
	"fmt"
	"time"

	chatrepo "live_session_service/internal/chat/repository"
	eventrepo "live_session_service/internal/eventbus/repository"
	giftrepo "live_session_service/internal/gift/repository"
	goalrepo "live_session_service/internal/goal/repository"
	ledgerrepo "live_session_service/internal/ledger/repository"
	notifydomain "live_session_service/internal/notify/domain"
	notifyrepo "live_session_service/internal/notify/repository"
	pollrepo "live_session_service/internal/poll/repository"
	roomrepo "live_session_service/internal/room/repository"
	sessionapp "live_session_service/internal/session/app"
	"live_session_service/pkg/config"
	"live_session_service/pkg/database"
	"live_session_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// backends stores plus the notification sender, cleanup closes every connection
type backends struct {
	stores  sessionapp.Stores
	sender  notifydomain.Sender
	cleanup []func()
}

func (b *backends) close() {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		b.cleanup[i]()
	}
}

func memoryBackends(cfg config.Coordinator) *backends {
	return &backends{stores: sessionapp.MemoryStores(cfg), sender: notifyrepo.NewLogSender()}
}

// postgresBackends 連線所有外部服務並建立資料表
func postgresBackends(ctx context.Context, cfg config.Coordinator) (*backends, error) {
	b := &backends{}
	fail := func(err error) (*backends, error) {
		b.close()
		return nil, err
	}

	// 1. PostgreSQL: ledger 用 pgx, 其他 store 用 gorm
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		return fail(fmt.Errorf("connect ledger postgres: %w", err))
	}
	b.cleanup = append(b.cleanup, pool.Close)
	if err := ledgerrepo.EnsureSchema(ctx, pool); err != nil {
		return fail(fmt.Errorf("ledger schema: %w", err))
	}

	db, err := database.NewPGConnection(pgConn)
	if err != nil {
		return fail(fmt.Errorf("connect gorm postgres: %w", err))
	}
	if sqlDB, err := db.DB(); err == nil {
		b.cleanup = append(b.cleanup, func() { _ = sqlDB.Close() })
	}

	rooms := roomrepo.NewRoomRepository(db)
	records := roomrepo.NewModerationRepository(db)
	gifts := giftrepo.NewGiftRepository(db)
	polls := pollrepo.NewPollRepository(db)
	goals := goalrepo.NewGoalRepository(db)
	for name, m := range map[string]interface{ AutoMigrate() error }{
		"rooms": rooms, "moderation": records, "gifts": gifts, "polls": polls, "goals": goals,
	} {
		if err := m.AutoMigrate(); err != nil {
			return fail(fmt.Errorf("migrate %s: %w", name, err))
		}
	}

	// 2. MongoDB 聊天紀錄
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    uri,
		RetryCount:    cfg.MongoSQL.RetryCount,
		RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
	}, cfg.MongoSQL.Database)
	if err != nil {
		return fail(fmt.Errorf("connect mongo: %w", err))
	}
	b.cleanup = append(b.cleanup, func() { _ = mongo.Close(context.Background()) })
	chat := chatrepo.NewMongoChatMessageRepository(mongo.Database)
	if err := chat.EnsureIndexes(ctx); err != nil {
		return fail(fmt.Errorf("chat indexes: %w", err))
	}

	// 3. Redis 事件匯流排, 有 sentinel 設定就走 sentinel
	var redisClient *redis.Client
	if masterName, sentinels := config.GetRedisSetting(); len(sentinels) > 0 {
		redisClient, err = database.NewRedisClient(masterName, sentinels, cfg.Redis.RedisDB)
	} else {
		redisClient, err = database.NewRedisStandalone(cfg.Redis.Addr, cfg.Redis.RedisDB)
	}
	if err != nil {
		return fail(err)
	}
	b.cleanup = append(b.cleanup, func() { _ = redisClient.Close() })

	// 4. RabbitMQ 推播佇列
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: cfg.RabbitMQ.RetryInterval,
	})
	if err != nil {
		return fail(err)
	}
	b.cleanup = append(b.cleanup, func() { _ = conn.Close() })
	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, cfg.RabbitMQ.RetryInterval)
	if err != nil {
		return fail(err)
	}
	b.cleanup = append(b.cleanup, func() { _ = rabbitChannel.Close() })
	if _, err := rabbitChannel.QueueDeclare(
		cfg.RabbitMQ.Queue, // queue name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // arguments
	); err != nil {
		return fail(fmt.Errorf("queue declare: %w", err))
	}

	// 5. Kafka 營運告警
	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: cfg.Kafka.RetryInterval,
	})
	if err != nil {
		return fail(err)
	}
	b.cleanup = append(b.cleanup, func() { _ = kafkaWriter.Close() })

	// 6. MinIO 禮物圖示
	icons := giftrepo.NewRawIconResolver()
	if cfg.MinIO.Host != "" {
		minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:      fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.BucketName,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: cfg.MinIO.RetryInterval,
		})
		if err != nil {
			return fail(err)
		}
		icons = giftrepo.NewMinIOIconResolver(minioClient, cfg.MinIO.IconURLTTL)
	} else {
		logger.Log.Warn("minio not configured, gift icons served as raw keys")
	}

	b.stores = sessionapp.Stores{
		Ledger:     ledgerrepo.NewLedgerRepository(pool),
		Alerts:     ledgerrepo.NewKafkaAlertSink(kafkaWriter),
		Rooms:      rooms,
		Moderation: records,
		Gifts:      gifts,
		Icons:      icons,
		Polls:      polls,
		Goals:      goals,
		Chat:       chat,
		Transport:  eventrepo.NewRedisTransport(redisClient),
	}
	b.sender = notifyrepo.NewRabbitSender(database.NewRabbitRepository(rabbitChannel), cfg.RabbitMQ.Queue)
	logger.Log.Info("postgres backends ready", zap.String("pg_host", cfg.PostgreSQL.Host))
	return b, nil
}

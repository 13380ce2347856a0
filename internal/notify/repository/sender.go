package repository

import (
	"context"
	"encoding/json"

	"live_session_service/internal/notify/domain"
	"live_session_service/pkg/database"
	"live_session_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type rabbitSender struct {
	rabbit database.RabbitRepo
	queue  string
}

// NewRabbitSender publish notifications to the durable push queue, consumed by the push gateway
func NewRabbitSender(rabbit database.RabbitRepo, queue string) domain.Sender {
	return &rabbitSender{rabbit: rabbit, queue: queue}
}

func (s *rabbitSender) Send(_ context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.rabbit.Publish("", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
}

type logSender struct{}

// NewLogSender notifications only go to the log, memory mode
func NewLogSender() domain.Sender {
	return logSender{}
}

func (logSender) Send(_ context.Context, n domain.Notification) error {
	logger.Log.Info("push notification", zap.String("user_id", n.UserID), zap.String("title", n.Title), zap.String("body", n.Body))
	return nil
}

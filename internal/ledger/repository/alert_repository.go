package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"live_session_service/internal/ledger/domain"
	"live_session_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaWriter the part of *kafka.Writer the alert sink uses
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaAlertSink struct {
	writer KafkaWriter
}

// NewKafkaAlertSink publish operational alerts to the ops topic, keyed by owner
func NewKafkaAlertSink(writer KafkaWriter) domain.AlertSink {
	return &kafkaAlertSink{writer: writer}
}

func (s *kafkaAlertSink) Raise(ctx context.Context, alert domain.OperationalAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.OwnerID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(alert.Kind)},
		},
	})
}

type logAlertSink struct{}

// NewLogAlertSink alerts only go to the error log, memory mode
func NewLogAlertSink() domain.AlertSink {
	return logAlertSink{}
}

func (logAlertSink) Raise(_ context.Context, alert domain.OperationalAlert) error {
	logger.Log.Error("operational alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("reference", alert.Reference),
		zap.String("owner_id", alert.OwnerID),
		zap.Int64("amount", alert.Amount),
		zap.String("reason", alert.Reason),
	)
	return nil
}

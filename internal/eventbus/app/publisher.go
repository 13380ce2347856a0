package app

import (
	"context"
	"encoding/json"
	"time"

	"live_session_service/internal/eventbus/domain"
	"live_session_service/internal/eventbus/repository"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Bus session event bus: publish committed changes, subscribe to a room
type Bus struct {
	transport  repository.Transport
	metrics    *metrics.Metrics
	maxElapsed time.Duration
}

// NewBus create Bus, maxElapsed bounds the publish retry
func NewBus(transport repository.Transport, m *metrics.Metrics, maxElapsed time.Duration) *Bus {
	if maxElapsed <= 0 {
		maxElapsed = 2 * time.Second
	}
	return &Bus{transport: transport, metrics: m, maxElapsed: maxElapsed}
}

// Publish send a committed event to the room. Retried with exponential backoff,
// a final failure is only logged: the state is committed and subscribers
// recover through resync.
func (b *Bus) Publish(ctx context.Context, ev domain.SessionEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal session event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		b.metrics.Published(string(ev.Kind), "failed")
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = b.maxElapsed

	// 使用 background 避免請求結束後 ctx 取消導致事件遺失
	pubCtx := context.WithoutCancel(ctx)
	err = backoff.Retry(func() error {
		return b.transport.Publish(pubCtx, ev.RoomID, body)
	}, backoff.WithContext(bo, pubCtx))
	if err != nil {
		logger.Log.Error("publish session event failed",
			zap.String("room_id", ev.RoomID),
			zap.String("kind", string(ev.Kind)),
			zap.String("stream", ev.Stream),
			zap.Int64("version", ev.Version),
			zap.Error(err),
		)
		b.metrics.Published(string(ev.Kind), "failed")
		return
	}
	b.metrics.Published(string(ev.Kind), "ok")
}

// Emit build and publish an event in one call
func (b *Bus) Emit(ctx context.Context, roomID string, kind domain.EventKind, stream string, version int64, payload interface{}) {
	ev, err := domain.NewEvent(roomID, kind, stream, version, payload)
	if err != nil {
		logger.Log.Error("build session event", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	b.Publish(ctx, ev)
}

// Subscribe decode room events for handler until ctx is done.
// lost is called when the transport dropped the subscription.
func (b *Bus) Subscribe(ctx context.Context, roomID string, handler func(domain.SessionEvent), lost func()) error {
	return b.transport.Subscribe(ctx, roomID, func(body []byte) {
		if body == nil {
			if lost != nil {
				lost()
			}
			return
		}
		var ev domain.SessionEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Log.Warn("drop undecodable session event", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		handler(ev)
	})
}

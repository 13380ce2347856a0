package app

import (
	"context"
	"sync"
	"time"

	"live_session_service/internal/notify/domain"
	"live_session_service/pkg/logger"

	"go.uber.org/zap"
)

// Dispatcher queues notifications and sends them from one background worker.
// A full queue or a failing sender only produces a log line.
type Dispatcher struct {
	sender domain.Sender
	queue  chan domain.Notification
	once   sync.Once
	done   chan struct{}
}

// NewDispatcher create Dispatcher with a queue of size buffer
func NewDispatcher(sender domain.Sender, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		sender: sender,
		queue:  make(chan domain.Notification, buffer),
		done:   make(chan struct{}),
	}
}

// Notify enqueue without blocking
func (d *Dispatcher) Notify(_ context.Context, userID, title, body string) {
	if userID == "" {
		return
	}
	n := domain.Notification{UserID: userID, Title: title, Body: body, CreatedAt: time.Now()}
	select {
	case d.queue <- n:
	default:
		logger.Log.Warn("notification queue full, dropping", zap.String("user_id", userID), zap.String("title", title))
	}
}

// Run send queued notifications until ctx is done, then drain what is left
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case n := <-d.queue:
			d.send(ctx, n)
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.send(context.Background(), n)
				default:
					return
				}
			}
		}
	}
}

// Done closed once Run returned
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) send(ctx context.Context, n domain.Notification) {
	if err := d.sender.Send(ctx, n); err != nil {
		logger.Log.Warn("push notification failed", zap.String("user_id", n.UserID), zap.String("title", n.Title), zap.Error(err))
	}
}

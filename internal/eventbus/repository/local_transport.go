package repository

import (
	"context"
	"sync"

	"live_session_service/pkg/logger"

	"go.uber.org/zap"
)

type localSubscriber struct {
	ch      chan []byte
	dropped bool
}

// LocalBus in process Transport, per room fan-out to buffered subscriber queues.
// A subscriber whose queue is full is dropped and has to resync.
type LocalBus struct {
	mu     sync.RWMutex
	rooms  map[string]map[*localSubscriber]struct{}
	buffer int
}

// NewLocalBus create LocalBus, buffer is the queue size of each subscriber
func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBus{
		rooms:  make(map[string]map[*localSubscriber]struct{}),
		buffer: buffer,
	}
}

// Publish never blocks on a slow subscriber
func (b *LocalBus) Publish(_ context.Context, roomID string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.rooms[roomID] {
		select {
		case sub.ch <- body:
		default:
			logger.Log.Warn("subscriber queue full, dropping subscriber", zap.String("room_id", roomID))
			b.removeLocked(roomID, sub)
		}
	}
	return nil
}

// Subscribe register handler for roomID until ctx is done
func (b *LocalBus) Subscribe(ctx context.Context, roomID string, handler func(body []byte)) error {
	sub := &localSubscriber{ch: make(chan []byte, b.buffer)}

	b.mu.Lock()
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[*localSubscriber]struct{})
	}
	b.rooms[roomID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case body, ok := <-sub.ch:
				if !ok {
					handler(nil)
					return
				}
				handler(body)
			case <-ctx.Done():
				b.mu.Lock()
				b.removeLocked(roomID, sub)
				b.mu.Unlock()
				return
			}
		}
	}()
	return nil
}

// Subscribers number of live subscribers of roomID
func (b *LocalBus) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

func (b *LocalBus) removeLocked(roomID string, sub *localSubscriber) {
	subs := b.rooms[roomID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if !sub.dropped {
		sub.dropped = true
		close(sub.ch)
	}
	if len(subs) == 0 {
		delete(b.rooms, roomID)
	}
}

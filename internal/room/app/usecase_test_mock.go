package app

import (
	"context"
	"sync"

	eventdomain "live_session_service/internal/eventbus/domain"
)

type emitted struct {
	RoomID  string
	Kind    eventdomain.EventKind
	Stream  string
	Version int64
	Payload interface{}
}

// recordingBus Publisher that keeps every emitted event
type recordingBus struct {
	mu     sync.Mutex
	events []emitted
}

func (b *recordingBus) Emit(_ context.Context, roomID string, kind eventdomain.EventKind, stream string, version int64, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{RoomID: roomID, Kind: kind, Stream: stream, Version: version, Payload: payload})
}

func (b *recordingBus) kinds() []eventdomain.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]eventdomain.EventKind, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Kind)
	}
	return out
}

func (b *recordingBus) last() emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

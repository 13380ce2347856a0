package app

import (
	"context"
	"sync"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/poll/domain"
)

type emitted struct {
	kind    eventdomain.EventKind
	stream  string
	version int64
	view    domain.PollView
}

type recordingBus struct {
	mu     sync.Mutex
	events []emitted
}

func (b *recordingBus) Emit(_ context.Context, _ string, kind eventdomain.EventKind, stream string, version int64, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	view, _ := payload.(domain.PollView)
	b.events = append(b.events, emitted{kind: kind, stream: stream, version: version, view: view})
}

func (b *recordingBus) ofKind(kind eventdomain.EventKind) []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []emitted
	for _, e := range b.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

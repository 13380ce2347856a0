package app

import (
	"encoding/json"
	"sync"

	"live_session_service/internal/eventbus/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Replica consumer side copy of a room's streams.
// Full-replace events win only when their Version is newer than the stored one,
// append-only events are applied once per ID. Duplicates and stale events are no-ops.
type Replica struct {
	mu        sync.Mutex
	versions  map[string]int64
	snapshots map[string]json.RawMessage
	seen      *lru.Cache[string, struct{}]
}

// NewReplica create Replica remembering up to dedupSize append-only event ids
func NewReplica(dedupSize int) *Replica {
	if dedupSize <= 0 {
		dedupSize = 1024
	}
	seen, _ := lru.New[string, struct{}](dedupSize)
	return &Replica{
		versions:  make(map[string]int64),
		snapshots: make(map[string]json.RawMessage),
		seen:      seen,
	}
}

// Apply returns true when ev changed the replica and should be forwarded
func (r *Replica) Apply(ev domain.SessionEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.AppendOnly() {
		if ev.ID == "" {
			return false
		}
		if ok, _ := r.seen.ContainsOrAdd(ev.ID, struct{}{}); ok {
			return false
		}
		return true
	}

	if ev.Version <= r.versions[ev.Stream] {
		return false
	}
	r.versions[ev.Stream] = ev.Version
	r.snapshots[ev.Stream] = ev.Payload
	return true
}

// Reset discard everything and rehydrate from an authoritative snapshot
func (r *Replica) Reset(streams []domain.StreamVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.versions = make(map[string]int64, len(streams))
	r.snapshots = make(map[string]json.RawMessage)
	r.seen.Purge()
	for _, s := range streams {
		r.versions[s.Stream] = s.Version
	}
}

// Version last applied version of stream
func (r *Replica) Version(stream string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[stream]
}

// Snapshot latest payload applied for stream
func (r *Replica) Snapshot(stream string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.snapshots[stream]
	return p, ok
}

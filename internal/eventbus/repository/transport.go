package repository

import (
	"context"
	"fmt"
)

// Transport moves encoded session events between nodes.
// Publish is called after commit, Subscribe delivers every message of the room
// channel to handler until ctx is done. A nil body tells the handler its
// subscription was lost and the consumer has to resync.
type Transport interface {
	Publish(ctx context.Context, roomID string, body []byte) error
	Subscribe(ctx context.Context, roomID string, handler func(body []byte)) error
}

// RoomChannel channel name of a room
func RoomChannel(roomID string) string {
	return fmt.Sprintf("session:room:%s", roomID)
}

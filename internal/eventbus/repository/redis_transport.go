package repository

import (
	"context"

	"live_session_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisTransport redis pub/sub, every coordinator node subscribes to the rooms its clients watch
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport create RedisTransport
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

// Publish 發布已序列化的事件到房間 channel
func (r *RedisTransport) Publish(ctx context.Context, roomID string, body []byte) error {
	return r.client.Publish(ctx, RoomChannel(roomID), body).Err()
}

// Subscribe 訂閱房間 channel，收到訊息後呼叫 handler 處理
func (r *RedisTransport) Subscribe(ctx context.Context, roomID string, handler func(body []byte)) error {
	channel := RoomChannel(roomID)
	sub := r.client.Subscribe(ctx, channel)
	// 確認訂閱成功才返回, 避免漏掉緊接著發布的事件
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					handler(nil)
					return
				}
				handler([]byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Debug("room subscription closed", zap.String("channel", channel))
				return
			}
		}
	}()
	return nil
}

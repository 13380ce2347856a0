package repository

import (
	"context"
	"sort"
	"sync"

	"live_session_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// recentBuckets 取最近訊息時最多往回翻幾天
const recentBuckets = 3

// MessageRepository chat message storage
type MessageRepository interface {
	EnsureIndexes(ctx context.Context) error
	// Append 寫入訊息到當天的 bucket, bucket 不存在時一併建立
	Append(ctx context.Context, msg domain.ChatMessage) error
	// Recent 最新 limit 則訊息, 由舊到新
	Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

type chatMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection("chat_messages"),
	}
}

func (r *chatMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "date", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *chatMessageRepository) Append(ctx context.Context, msg domain.ChatMessage) error {
	filter := bson.M{"room_id": msg.RoomID, "date": msg.BucketDate()}
	update := bson.M{"$push": bson.M{"messages": msg}}
	// upsert: 同一天的第一則訊息建立 bucket, 並發寫入也不會產生兩個 bucket
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *chatMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(recentBuckets)
	cur, err := r.coll.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, err
	}
	var buckets []domain.MessageBucket
	if err := cur.All(ctx, &buckets); err != nil {
		return nil, err
	}

	// buckets 由新到舊, 往回收集直到滿 limit
	var out []domain.ChatMessage
	for _, b := range buckets {
		out = append(b.Messages, out...)
		if len(out) >= limit {
			break
		}
	}
	return tail(out, limit), nil
}

func (r *chatMessageRepository) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"room_id": roomID})
	return err
}

func tail(msgs []domain.ChatMessage, limit int) []domain.ChatMessage {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}

type memoryMessageRepository struct {
	mu      sync.Mutex
	buckets map[string]map[string][]domain.ChatMessage
}

// NewMemoryMessageRepository in process MessageRepository
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{buckets: make(map[string]map[string][]domain.ChatMessage)}
}

func (m *memoryMessageRepository) EnsureIndexes(context.Context) error { return nil }

func (m *memoryMessageRepository) Append(_ context.Context, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	days, ok := m.buckets[msg.RoomID]
	if !ok {
		days = make(map[string][]domain.ChatMessage)
		m.buckets[msg.RoomID] = days
	}
	days[msg.BucketDate()] = append(days[msg.BucketDate()], msg)
	return nil
}

func (m *memoryMessageRepository) Recent(_ context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	days := m.buckets[roomID]
	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []domain.ChatMessage
	for _, d := range dates {
		out = append(out, days[d]...)
	}
	return append([]domain.ChatMessage(nil), tail(out, limit)...), nil
}

func (m *memoryMessageRepository) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets, roomID)
	return nil
}

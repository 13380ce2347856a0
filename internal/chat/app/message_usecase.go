package app

import (
	"context"
	"time"

	"live_session_service/internal/chat/domain"
	"live_session_service/internal/chat/repository"
	eventdomain "live_session_service/internal/eventbus/domain"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gate moderation check run before any mutation
type Gate interface {
	Check(ctx context.Context, roomID, userID string, action roomdomain.Action) error
}

// MessageUseCase 負責處理聊天訊息
type MessageUseCase struct {
	msgRepo repository.MessageRepository
	gate    Gate
	bus     eventdomain.Publisher
	now     func() time.Time
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(msgRepo repository.MessageRepository, gate Gate, bus eventdomain.Publisher) *MessageUseCase {
	return &MessageUseCase{msgRepo: msgRepo, gate: gate, bus: bus, now: time.Now}
}

// SendMessage store and broadcast a chat message. Banned senders get Forbidden,
// muted ones Muted, both checked against the record at the time of the call.
func (uc *MessageUseCase) SendMessage(ctx context.Context, roomID, senderID, senderName, content string) (*domain.ChatMessage, error) {
	if err := uc.gate.Check(ctx, roomID, senderID, roomdomain.ActionChat); err != nil {
		return nil, err
	}
	content, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg := domain.ChatMessage{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Timestamp:  uc.now().UnixMilli(),
	}
	if err := uc.msgRepo.Append(ctx, msg); err != nil {
		logger.Log.Error("store chat message", zap.String("room_id", roomID), zap.String("sender_id", senderID), zap.Error(err))
		return nil, err
	}

	uc.bus.Emit(ctx, roomID, eventdomain.KindChatMessage, eventdomain.StreamChat, 0, msg)
	return &msg, nil
}

// Recent latest messages of a room, oldest first
func (uc *MessageUseCase) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return uc.msgRepo.Recent(ctx, roomID, limit)
}

// DeleteRoom drop the history of an ended room
func (uc *MessageUseCase) DeleteRoom(ctx context.Context, roomID string) error {
	return uc.msgRepo.DeleteRoom(ctx, roomID)
}

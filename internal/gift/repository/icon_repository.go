package repository

import (
	"context"
	"time"

	"live_session_service/pkg/database"
	"live_session_service/pkg/logger"

	"go.uber.org/zap"
)

// IconResolver turns a catalog icon key into a URL clients can load
type IconResolver interface {
	IconURL(ctx context.Context, key string) string
}

type minioIcons struct {
	client *database.MinIOClient
	ttl    time.Duration
}

// NewMinIOIconResolver presigned GET urls on the gift bucket
func NewMinIOIconResolver(client *database.MinIOClient, ttl time.Duration) IconResolver {
	return &minioIcons{client: client, ttl: ttl}
}

// IconURL 生成失敗只影響動畫, 退回原始 key
func (m *minioIcons) IconURL(ctx context.Context, key string) string {
	url, err := m.client.PresignGetURL(ctx, key, m.ttl)
	if err != nil {
		logger.Log.Warn("presign gift icon", zap.String("key", key), zap.Error(err))
		return key
	}
	return url
}

type rawIcons struct{}

// NewRawIconResolver returns the icon key unchanged, memory mode
func NewRawIconResolver() IconResolver {
	return rawIcons{}
}

func (rawIcons) IconURL(_ context.Context, key string) string {
	return key
}

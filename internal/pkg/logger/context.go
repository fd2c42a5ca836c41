package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	requestIDKey      contextKey = "request_id"
	conversationIDKey contextKey = "conversation_id"
	userIDKey         contextKey = "user_id"
)

// WithContext 从 context 中提取 request/conversation/user 字段
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	fields := make([]zap.Field, 0, 3)
	if v := GetRequestID(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := GetConversationID(ctx); v != "" {
		fields = append(fields, zap.String("conversation_id", v))
	}
	if v := GetUserID(ctx); v != "" {
		fields = append(fields, zap.String("user_id", v))
	}

	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// WithRequestID 写入请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithConversationID 写入会话 ID
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey, conversationID)
}

// WithUserID 写入用户 ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetRequestID 读取请求 ID
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// GetConversationID 读取会话 ID
func GetConversationID(ctx context.Context) string {
	v, _ := ctx.Value(conversationIDKey).(string)
	return v
}

// GetUserID 读取用户 ID
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

package log

import (
	"context"
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

type ctxKey string

const (
	conversationKey ctxKey = "conversation_id"
	requestKey      ctxKey = "request_id"
	sourceKey       ctxKey = "source"
)

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
}

// SetLogger replaces the package logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

func Sync() {
	_ = logger.Sync()
}

// WithConversation tags ctx so that WithCtx loggers carry the conversation.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationKey, conversationID)
}

func WithRequest(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestKey, requestID)
}

func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

func WithCtx(ctx context.Context) *zap.Logger {
	fields := []zap.Field{}

	if v := ctx.Value(sourceKey); v != nil {
		fields = append(fields, zap.Any(string(sourceKey), v))
	}
	if v := ctx.Value(conversationKey); v != nil {
		fields = append(fields, zap.Any(string(conversationKey), v))
	}
	if v := ctx.Value(requestKey); v != nil {
		fields = append(fields, zap.Any(string(requestKey), v))
	}

	return logger.With(fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}

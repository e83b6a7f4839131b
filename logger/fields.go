package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names. Use these instead of raw strings so log queries work
// across components.
const (
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldClientID  = "client_id"
	FieldComponent = "component"

	FieldStage     = "stage"
	FieldStatus    = "status"
	FieldDelivered = "delivered"
	FieldRecipeID  = "recipe_id"

	FieldMethod     = "method"
	FieldPath       = "path"
	FieldURL        = "url"
	FieldDurationMS = "duration_ms"
	FieldSize       = "size"
	FieldCount      = "count"

	FieldError = "error"
	FieldAddr  = "addr"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	userIDKey    contextKey = "logger_user_id"
	clientIDKey  contextKey = "logger_client_id"
)

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID adds the authenticated user to the context for logging.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithClientID adds the push-channel client id to the context for logging.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// FieldsFromContext extracts logging fields from ctx as key/value pairs
// suitable for Infow/Errorw.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, FieldRequestID, v)
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		fields = append(fields, FieldUserID, v)
	}
	if v, ok := ctx.Value(clientIDKey).(string); ok && v != "" {
		fields = append(fields, FieldClientID, v)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a component. This is the
// preferred way to obtain a logger for dependency injection:
//
//	reg := server.NewRegistry(logger.ComponentLogger("server.registry"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

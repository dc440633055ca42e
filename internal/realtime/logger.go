package realtime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WSLogger provides structured logging for websocket events.
type WSLogger struct {
	logger *zap.Logger
}

func NewWSLogger() *WSLogger {
	return &WSLogger{
		logger: zap.L().With(zap.String("component", "realtime")),
	}
}

func (l *WSLogger) Info(event string, userID uuid.UUID, connID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("conn_id", connID),
	}, fields...)
	l.logger.Info("ws_event", allFields...)
}

func (l *WSLogger) Error(event string, userID uuid.UUID, connID string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("conn_id", connID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("ws_error", allFields...)
}

// WarnEvent logs a hub-level warning not tied to one connection.
func (l *WSLogger) WarnEvent(event string, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.String("event", event)}, fields...)
	l.logger.Warn("ws_warning", allFields...)
}

func (l *WSLogger) Warn(event string, userID uuid.UUID, connID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("conn_id", connID),
	}, fields...)
	l.logger.Warn("ws_warning", allFields...)
}

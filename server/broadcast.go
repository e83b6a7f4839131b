package server

import (
	"go.uber.org/zap"

	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/progress"
)

// Broadcaster turns stage transitions into processing_update messages and
// routes them through a Registry. It implements pipeline.Broadcaster.
type Broadcaster struct {
	registry *Registry
	logger   *zap.SugaredLogger
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *Registry, log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger.OrNop(log)}
}

// Broadcast delivers one update to clientID and reports whether the registry
// accepted it. A job submitted without a client id is never delivered.
func (b *Broadcaster) Broadcast(clientID string, stage progress.Stage, status progress.Status, message string) bool {
	if clientID == "" {
		return false
	}
	payload, err := progress.EncodeUpdate(progress.Update{Stage: stage, Status: status, Message: message})
	if err != nil {
		b.logger.Errorw("Failed to encode processing update",
			logger.FieldClientID, clientID,
			logger.FieldStage, stage,
			logger.FieldError, err,
		)
		return false
	}
	return b.registry.Send(clientID, payload)
}

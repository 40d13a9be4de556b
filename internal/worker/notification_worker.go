package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// EventSink forwards lifecycle events outside the process.
type EventSink interface {
	Handle(ctx context.Context, event events.Event) error
}

// StartEventSink subscribes sink to every lifecycle event. Sink failures are
// logged by the dispatcher and never reach the publisher.
func StartEventSink(dispatcher events.Dispatcher, sink EventSink, logger *zap.Logger) {
	if dispatcher == nil || sink == nil {
		return
	}
	events.SubscribeAll(dispatcher, sink.Handle)
	if logger != nil {
		logger.Info("event sink attached", zap.Int("event_types", len(events.AllEventTypes())))
	}
}

package worker

import (
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/service"
)

// StartNotificationWorker attaches the notification handlers to the
// dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher events.Dispatcher) {
	if notificationService == nil || dispatcher == nil {
		return
	}
	notificationService.Register(dispatcher)
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// ActivityLog writes one structured line per committed ticket change.
type ActivityLog struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewActivityLog creates the subscriber.
func NewActivityLog(dispatcher events.Dispatcher, logger *zap.Logger) *ActivityLog {
	return &ActivityLog{
		dispatcher: dispatcher,
		logger:     logger.Named("activity"),
	}
}

// RegisterHandlers subscribes to events.
func (a *ActivityLog) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketUpdated, a.handleTicketUpdated)
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handleTicketStatusChanged)
	a.dispatcher.Subscribe(events.EventTicketDeleted, a.handleTicketDeleted)
}

func (a *ActivityLog) handleTicketCreated(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketCreatedPayload)
	a.logger.Info("TicketCreated", append(baseFields(event),
		zap.String("category", string(payload.Category)),
		zap.String("status", string(payload.Status)),
	)...)
	return nil
}

func (a *ActivityLog) handleTicketUpdated(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketUpdatedPayload)
	a.logger.Info("TicketUpdated", append(baseFields(event), zap.Strings("fields", payload.Fields))...)
	return nil
}

func (a *ActivityLog) handleTicketStatusChanged(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketStatusChangedPayload)
	a.logger.Info("TicketStatusChanged", append(baseFields(event),
		zap.String("old_status", string(payload.OldStatus)),
		zap.String("new_status", string(payload.NewStatus)),
	)...)
	return nil
}

func (a *ActivityLog) handleTicketDeleted(_ context.Context, event events.Event) error {
	a.logger.Info("TicketDeleted", baseFields(event)...)
	return nil
}

func baseFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.UserID),
		zap.Bool("actor_staff", event.Actor.Staff),
	}
}

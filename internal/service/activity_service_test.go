package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
)

func TestActivityLogRecordsStatusChanges(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewActivityLog(dispatcher, zap.New(core)).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketStatusChanged,
		TicketID: "ticket-1",
		Actor:    events.Actor{UserID: "staff-1", Staff: true},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusNew,
			NewStatus: domain.TicketStatusResolved,
		},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("TicketStatusChanged").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ticket-1", fields["ticket_id"])
	assert.Equal(t, "New", fields["old_status"])
	assert.Equal(t, "Resolved", fields["new_status"])
	assert.Equal(t, true, fields["actor_staff"])
	assert.Equal(t, "activity", entries[0].LoggerName)
}

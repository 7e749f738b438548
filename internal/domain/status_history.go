package domain

import "time"

// StatusHistoryEntry is an immutable record of one status a ticket has held.
// Status is stored verbatim; writers only ever pass validated TicketStatus values.
type StatusHistoryEntry struct {
	ID          string
	TicketID    string
	Status      TicketStatus
	ChangedByID *string
	ChangedBy   *UserSummary
	ChangedAt   time.Time
}

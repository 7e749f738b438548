package domain

import "time"

// Category classifies what a ticket is about.
type Category string

const (
	CategoryTechnical Category = "Technical"
	CategoryFinancial Category = "Financial"
	CategoryProduct   Category = "Product"
)

// Categories lists every accepted category in display order.
var Categories = []Category{CategoryTechnical, CategoryFinancial, CategoryProduct}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, candidate := range Categories {
		if c == candidate {
			return true
		}
	}
	return false
}

// ParseCategory converts raw input to a Category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(raw)
	return c, c.Valid()
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew         TicketStatus = "New"
	TicketStatusUnderReview TicketStatus = "Under Review"
	TicketStatusResolved    TicketStatus = "Resolved"
)

// TicketStatuses lists every accepted status in display order.
var TicketStatuses = []TicketStatus{TicketStatusNew, TicketStatusUnderReview, TicketStatusResolved}

// Valid reports whether s is one of the fixed statuses.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseTicketStatus converts raw input to a TicketStatus.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	s := TicketStatus(raw)
	return s, s.Valid()
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Category    Category
	Status      TicketStatus
	// Attachment holds the blob store public id, nil when nothing is attached.
	Attachment  *string
	CreatedByID string
	CreatedAt   time.Time

	// Populated on reads.
	CreatedBy     *UserSummary
	StatusHistory []StatusHistoryEntry
}

// OwnedBy reports whether userID created the ticket.
func (t *Ticket) OwnedBy(userID string) bool {
	return t != nil && t.CreatedByID == userID
}

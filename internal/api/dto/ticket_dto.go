package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Status      *string `json:"status"`
}

// UpdateTicketRequest payload for PUT and PATCH. Absent keys leave fields unchanged.
type UpdateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Status      *string `json:"status"`
}

// SetStatusRequest payload for PATCH /tickets/:id/status.
type SetStatusRequest struct {
	Status *string `json:"status"`
}

// UserSummaryResponse identifies a user inside ticket payloads.
type UserSummaryResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// StatusHistoryResponse is one ledger entry.
type StatusHistoryResponse struct {
	ID        string               `json:"id"`
	Status    domain.TicketStatus  `json:"status"`
	ChangedBy *UserSummaryResponse `json:"changed_by"`
	ChangedAt time.Time            `json:"changed_at"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	Category      domain.Category         `json:"category"`
	Status        domain.TicketStatus     `json:"status"`
	Attachment    *string                 `json:"attachment"`
	CreatedBy     *UserSummaryResponse    `json:"created_by"`
	CreatedAt     time.Time               `json:"created_at"`
	StatusHistory []StatusHistoryResponse `json:"status_history"`
}

// ListMeta describes the page returned by a list endpoint.
type ListMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// NewUserSummaryResponse maps a domain summary; nil stays nil.
func NewUserSummaryResponse(summary *domain.UserSummary) *UserSummaryResponse {
	if summary == nil {
		return nil
	}
	return &UserSummaryResponse{ID: summary.ID, Username: summary.Username, Email: summary.Email}
}

// NewStatusHistoryResponses maps ledger entries in order.
func NewStatusHistoryResponses(entries []domain.StatusHistoryEntry) []StatusHistoryResponse {
	resp := make([]StatusHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, StatusHistoryResponse{
			ID:        entry.ID,
			Status:    entry.Status,
			ChangedBy: NewUserSummaryResponse(entry.ChangedBy),
			ChangedAt: entry.ChangedAt,
		})
	}
	return resp
}

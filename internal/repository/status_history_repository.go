package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
)

// StatusHistoryRepository is the append-only ledger of ticket statuses. There is
// no update or delete: entries disappear only when their ticket is deleted.
type StatusHistoryRepository interface {
	Append(ctx context.Context, entry *domain.StatusHistoryEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error)
	ListByTickets(ctx context.Context, ticketIDs []string) (map[string][]domain.StatusHistoryEntry, error)
}

type statusHistoryRepository struct {
	db DBTX
}

// NewStatusHistoryRepository builds repository.
func NewStatusHistoryRepository(db DBTX) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

func (r *statusHistoryRepository) Append(ctx context.Context, entry *domain.StatusHistoryEntry) error {
	const query = `
        INSERT INTO ticket_status_history (ticket_id, status, changed_by)
        VALUES ($1,$2,$3)
        RETURNING id, changed_at`
	return r.db.QueryRow(ctx, query,
		entry.TicketID,
		entry.Status,
		entry.ChangedByID,
	).Scan(&entry.ID, &entry.ChangedAt)
}

const historyColumns = `h.id, h.ticket_id, h.status, h.changed_by, h.changed_at, u.id, u.username, u.email`

func (r *statusHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	if !validID(ticketID) {
		return []domain.StatusHistoryEntry{}, nil
	}
	query := `SELECT ` + historyColumns + `
        FROM ticket_status_history h LEFT JOIN users u ON u.id = h.changed_by
        WHERE h.ticket_id=$1 ORDER BY h.changed_at ASC, h.id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.StatusHistoryEntry{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func (r *statusHistoryRepository) ListByTickets(ctx context.Context, ticketIDs []string) (map[string][]domain.StatusHistoryEntry, error) {
	result := make(map[string][]domain.StatusHistoryEntry, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return result, nil
	}
	query := `SELECT ` + historyColumns + `
        FROM ticket_status_history h LEFT JOIN users u ON u.id = h.changed_by
        WHERE h.ticket_id = ANY($1::uuid[]) ORDER BY h.changed_at ASC, h.id ASC`
	rows, err := r.db.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result[entry.TicketID] = append(result[entry.TicketID], *entry)
	}
	return result, rows.Err()
}

func scanHistory(row pgx.Row) (*domain.StatusHistoryEntry, error) {
	var entry domain.StatusHistoryEntry
	var userID, username, email *string
	if err := row.Scan(
		&entry.ID,
		&entry.TicketID,
		&entry.Status,
		&entry.ChangedByID,
		&entry.ChangedAt,
		&userID,
		&username,
		&email,
	); err != nil {
		return nil, err
	}
	if userID != nil {
		entry.ChangedBy = &domain.UserSummary{ID: *userID, Username: deref(username), Email: deref(email)}
	}
	return &entry, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

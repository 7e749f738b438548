package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketOrdering names a supported list ordering.
type TicketOrdering string

const (
	OrderCreatedAtDesc TicketOrdering = "-created_at"
	OrderCreatedAtAsc  TicketOrdering = "created_at"
	OrderStatusAsc     TicketOrdering = "status"
	OrderStatusDesc    TicketOrdering = "-status"
)

var orderClauses = map[TicketOrdering]string{
	OrderCreatedAtDesc: "t.created_at DESC, t.id DESC",
	OrderCreatedAtAsc:  "t.created_at ASC, t.id ASC",
	OrderStatusAsc:     "t.status ASC, t.created_at DESC, t.id DESC",
	OrderStatusDesc:    "t.status DESC, t.created_at DESC, t.id DESC",
}

// ParseTicketOrdering maps a client supplied ordering to a known one, falling
// back to newest first.
func ParseTicketOrdering(raw string) TicketOrdering {
	ordering := TicketOrdering(strings.TrimSpace(raw))
	if _, ok := orderClauses[ordering]; ok {
		return ordering
	}
	return OrderCreatedAtDesc
}

// TicketFilter captures list parameters. CreatedByID is the visibility scope and
// is applied together with every other predicate before ordering and paging.
type TicketFilter struct {
	CreatedByID *string
	Category    *domain.Category
	Status      *domain.TicketStatus
	SearchTerm  *string
	Ordering    TicketOrdering
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `t.id, t.title, t.description, t.category, t.status, t.attachment,
               t.created_by, t.created_at, u.id, u.username, u.email`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, category, status, attachment, created_by)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Attachment,
		ticket.CreatedByID,
	).Scan(&ticket.ID, &ticket.CreatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, status=$4, attachment=$5
        WHERE id=$6`
	if !validID(ticket.ID) {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Attachment,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the ticket; its status history goes with it through ON DELETE CASCADE.
func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets t JOIN users u ON u.id = t.created_by
        WHERE t.id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets t JOIN users u ON u.id = t.created_by
        WHERE t.id=$1
        FOR UPDATE OF t`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := filterClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	ordering := orderClauses[ParseTicketOrdering(string(filter.Ordering))]

	query := fmt.Sprintf(`SELECT %s
        FROM tickets t JOIN users u ON u.id = t.created_by
        WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		ticketColumns, where, ordering, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := filterClauses(filter)
	query := `SELECT COUNT(*) FROM tickets t WHERE ` + where

	var total int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func filterClauses(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedByID != nil {
		args = append(args, *filter.CreatedByID)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("t.category=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + escapeLike(strings.ToLower(strings.TrimSpace(*filter.SearchTerm))) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(t.title) LIKE %s ESCAPE '\' OR LOWER(t.description) LIKE %s ESCAPE '\')`, placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var creator domain.UserSummary
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Attachment,
		&ticket.CreatedByID,
		&ticket.CreatedAt,
		&creator.ID,
		&creator.Username,
		&creator.Email,
	); err != nil {
		return nil, err
	}
	ticket.CreatedBy = &creator
	return &ticket, nil
}

// validID guards uuid columns so malformed ids read as missing rows instead of
// surfacing as a syntax error from Postgres.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

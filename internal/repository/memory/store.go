// Package memory implements the repository contracts in process memory. It backs
// the server when no Postgres DSN is configured and is the store used by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

type state struct {
	tickets     map[string]domain.Ticket
	ticketOrder []string
	history     []domain.StatusHistoryEntry
	users       map[string]domain.User
}

func newState() *state {
	return &state{
		tickets: make(map[string]domain.Ticket),
		users:   make(map[string]domain.User),
	}
}

func (s *state) clone() *state {
	c := &state{
		tickets:     make(map[string]domain.Ticket, len(s.tickets)),
		ticketOrder: append([]string(nil), s.ticketOrder...),
		history:     append([]domain.StatusHistoryEntry(nil), s.history...),
		users:       make(map[string]domain.User, len(s.users)),
	}
	for id, t := range s.tickets {
		c.tickets[id] = t
	}
	for id, u := range s.users {
		c.users[id] = u
	}
	return c
}

// Store is an in-memory repository.Store. Transactions run against a copy of the
// data that replaces the live copy only when the callback succeeds; they hold the
// store lock for their whole duration, so a callback must only use the stores it
// is handed.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// view routes repository calls either to the live state (taking the lock) or to
// a transaction's private copy.
type view struct {
	store *Store
	tx    *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func (v view) now() time.Time {
	return v.store.now().UTC()
}

type provider struct {
	v view
}

func (p provider) Tickets() repository.TicketRepository { return &ticketRepo{v: p.v} }

func (p provider) StatusHistory() repository.StatusHistoryRepository { return &historyRepo{v: p.v} }

func (p provider) Users() repository.UserRepository { return &userRepo{v: p.v} }

func (s *Store) Tickets() repository.TicketRepository { return provider{v: view{store: s}}.Tickets() }

func (s *Store) StatusHistory() repository.StatusHistoryRepository {
	return provider{v: view{store: s}}.StatusHistory()
}

func (s *Store) Users() repository.UserRepository { return provider{v: view{store: s}}.Users() }

// WithTx runs fn against a private copy of the data and publishes the copy only
// when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(stores repository.StoreProvider) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	working := s.st.clone()
	if err := fn(provider{v: view{store: s, tx: working}}); err != nil {
		return err
	}
	s.st = working
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type ticketRepo struct {
	v view
}

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.users[ticket.CreatedByID]; !ok {
			return fmt.Errorf("created_by %q: unknown user", ticket.CreatedByID)
		}
		ticket.ID = uuid.NewString()
		ticket.CreatedAt = r.v.now()
		stored := *ticket
		stored.CreatedBy = nil
		stored.StatusHistory = nil
		st.tickets[ticket.ID] = stored
		st.ticketOrder = append(st.ticketOrder, ticket.ID)
		return nil
	})
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.v.do(func(st *state) error {
		existing, ok := st.tickets[ticket.ID]
		if !ok {
			return repository.ErrNotFound
		}
		existing.Title = ticket.Title
		existing.Description = ticket.Description
		existing.Category = ticket.Category
		existing.Status = ticket.Status
		existing.Attachment = ticket.Attachment
		st.tickets[ticket.ID] = existing
		return nil
	})
}

func (r *ticketRepo) Delete(_ context.Context, id string) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.tickets[id]; !ok {
			return repository.ErrNotFound
		}
		st.deleteTickets(map[string]bool{id: true})
		return nil
	})
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(func(st *state) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = st.withCreator(ticket)
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no extra locking: transactions already hold the store lock.
func (r *ticketRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	err := r.v.do(func(st *state) error {
		matched := st.filter(filter)
		sortTickets(matched, repository.ParseTicketOrdering(string(filter.Ordering)))

		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		for i := offset; i < len(matched) && i < offset+limit; i++ {
			result = append(result, *st.withCreator(matched[i]))
		}
		return nil
	})
	return result, err
}

func (r *ticketRepo) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	var total int
	err := r.v.do(func(st *state) error {
		total = len(st.filter(filter))
		return nil
	})
	return total, err
}

func (st *state) filter(filter repository.TicketFilter) []domain.Ticket {
	term := ""
	if filter.SearchTerm != nil {
		term = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	matched := []domain.Ticket{}
	for _, id := range st.ticketOrder {
		ticket := st.tickets[id]
		if filter.CreatedByID != nil && ticket.CreatedByID != *filter.CreatedByID {
			continue
		}
		if filter.Category != nil && ticket.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) {
			continue
		}
		matched = append(matched, ticket)
	}
	return matched
}

// sortTickets keeps insertion order as the final tie-break.
func sortTickets(tickets []domain.Ticket, ordering repository.TicketOrdering) {
	newestFirst := func(a, b domain.Ticket) bool { return a.CreatedAt.After(b.CreatedAt) }
	var less func(a, b domain.Ticket) bool
	switch ordering {
	case repository.OrderCreatedAtAsc:
		less = func(a, b domain.Ticket) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case repository.OrderStatusAsc:
		less = func(a, b domain.Ticket) bool {
			if a.Status != b.Status {
				return a.Status < b.Status
			}
			return newestFirst(a, b)
		}
	case repository.OrderStatusDesc:
		less = func(a, b domain.Ticket) bool {
			if a.Status != b.Status {
				return a.Status > b.Status
			}
			return newestFirst(a, b)
		}
	default:
		less = newestFirst
	}
	if ordering == repository.OrderCreatedAtAsc {
		sort.SliceStable(tickets, func(i, j int) bool { return less(tickets[i], tickets[j]) })
		return
	}
	// Descending orders break ties newest-inserted first, so walk insertion order backwards.
	for i, j := 0, len(tickets)-1; i < j; i, j = i+1, j-1 {
		tickets[i], tickets[j] = tickets[j], tickets[i]
	}
	sort.SliceStable(tickets, func(i, j int) bool { return less(tickets[i], tickets[j]) })
}

func (st *state) withCreator(ticket domain.Ticket) *domain.Ticket {
	if user, ok := st.users[ticket.CreatedByID]; ok {
		ticket.CreatedBy = user.Summary()
	}
	return &ticket
}

func (st *state) deleteTickets(ids map[string]bool) {
	for id := range ids {
		delete(st.tickets, id)
	}
	order := st.ticketOrder[:0:0]
	for _, id := range st.ticketOrder {
		if !ids[id] {
			order = append(order, id)
		}
	}
	st.ticketOrder = order

	kept := st.history[:0:0]
	for _, entry := range st.history {
		if !ids[entry.TicketID] {
			kept = append(kept, entry)
		}
	}
	st.history = kept
}

type historyRepo struct {
	v view
}

func (r *historyRepo) Append(_ context.Context, entry *domain.StatusHistoryEntry) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.tickets[entry.TicketID]; !ok {
			return fmt.Errorf("ticket %q: %w", entry.TicketID, repository.ErrNotFound)
		}
		entry.ID = uuid.NewString()
		entry.ChangedAt = r.v.now()
		stored := *entry
		stored.ChangedBy = nil
		st.history = append(st.history, stored)
		return nil
	})
}

func (r *historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	grouped, err := r.ListByTickets(ctx, []string{ticketID})
	if err != nil {
		return nil, err
	}
	if entries, ok := grouped[ticketID]; ok {
		return entries, nil
	}
	return []domain.StatusHistoryEntry{}, nil
}

func (r *historyRepo) ListByTickets(_ context.Context, ticketIDs []string) (map[string][]domain.StatusHistoryEntry, error) {
	result := make(map[string][]domain.StatusHistoryEntry, len(ticketIDs))
	wanted := make(map[string]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = true
	}
	err := r.v.do(func(st *state) error {
		for _, entry := range st.history {
			if !wanted[entry.TicketID] {
				continue
			}
			if entry.ChangedByID != nil {
				if user, ok := st.users[*entry.ChangedByID]; ok {
					entry.ChangedBy = user.Summary()
				}
			}
			result[entry.TicketID] = append(result[entry.TicketID], entry)
		}
		return nil
	})
	return result, err
}

type userRepo struct {
	v view
}

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	return r.v.do(func(st *state) error {
		for _, existing := range st.users {
			if existing.Username == user.Username {
				return fmt.Errorf("%w: users_username_key", repository.ErrDuplicate)
			}
		}
		now := r.v.now()
		user.ID = uuid.NewString()
		user.CreatedAt = now
		user.UpdatedAt = now
		st.users[user.ID] = *user
		return nil
	})
}

func (r *userRepo) Update(_ context.Context, user *domain.User) error {
	return r.v.do(func(st *state) error {
		existing, ok := st.users[user.ID]
		if !ok {
			return repository.ErrNotFound
		}
		for id, other := range st.users {
			if id != user.ID && other.Username == user.Username {
				return fmt.Errorf("%w: users_username_key", repository.ErrDuplicate)
			}
		}
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = r.v.now()
		st.users[user.ID] = *user
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.do(func(st *state) error {
		user, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &user
		return nil
	})
	return out, err
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	var out *domain.User
	err := r.v.do(func(st *state) error {
		for _, user := range st.users {
			if user.Username == username {
				u := user
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *userRepo) Delete(_ context.Context, id string) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.users, id)

		owned := map[string]bool{}
		for ticketID, ticket := range st.tickets {
			if ticket.CreatedByID == id {
				owned[ticketID] = true
			}
		}
		st.deleteTickets(owned)

		for i := range st.history {
			if st.history[i].ChangedByID != nil && *st.history[i].ChangedByID == id {
				st.history[i].ChangedByID = nil
			}
		}
		return nil
	})
}

var _ repository.Store = (*Store)(nil)

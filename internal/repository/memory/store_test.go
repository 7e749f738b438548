package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

func newUser(t *testing.T, s *Store, username string) *domain.User {
	t.Helper()
	user := &domain.User{Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, s.Users().Create(context.Background(), user))
	return user
}

func newTicket(t *testing.T, s *Store, owner *domain.User, title string, category domain.Category, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Title:       title,
		Description: title + " details",
		Category:    category,
		Status:      status,
		CreatedByID: owner.ID,
	}
	require.NoError(t, s.Tickets().Create(context.Background(), ticket))
	return ticket
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	current := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	owner := newUser(t, s, "alice")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(stores repository.StoreProvider) error {
		ticket := &domain.Ticket{Title: "t", Description: "d", Category: domain.CategoryProduct, Status: domain.TicketStatusNew, CreatedByID: owner.ID}
		require.NoError(t, stores.Tickets().Create(ctx, ticket))
		require.NoError(t, stores.StatusHistory().Append(ctx, &domain.StatusHistoryEntry{TicketID: ticket.ID, Status: ticket.Status}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	total, err := s.Tickets().Count(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	owner := newUser(t, s, "alice")

	var ticketID string
	err := s.WithTx(ctx, func(stores repository.StoreProvider) error {
		ticket := &domain.Ticket{Title: "t", Description: "d", Category: domain.CategoryProduct, Status: domain.TicketStatusNew, CreatedByID: owner.ID}
		if err := stores.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		ticketID = ticket.ID
		return stores.StatusHistory().Append(ctx, &domain.StatusHistoryEntry{TicketID: ticket.ID, Status: ticket.Status, ChangedByID: &owner.ID})
	})
	require.NoError(t, err)

	ticket, err := s.Tickets().GetByID(ctx, ticketID)
	require.NoError(t, err)
	require.NotNil(t, ticket.CreatedBy)
	assert.Equal(t, "alice", ticket.CreatedBy.Username)

	history, err := s.StatusHistory().ListByTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ChangedBy)
	assert.Equal(t, owner.ID, history[0].ChangedBy.ID)
}

func TestDeleteTicketCascadesHistory(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	owner := newUser(t, s, "alice")
	keep := newTicket(t, s, owner, "keep", domain.CategoryTechnical, domain.TicketStatusNew)
	drop := newTicket(t, s, owner, "drop", domain.CategoryTechnical, domain.TicketStatusNew)
	for _, ticket := range []*domain.Ticket{keep, drop} {
		require.NoError(t, s.StatusHistory().Append(ctx, &domain.StatusHistoryEntry{TicketID: ticket.ID, Status: ticket.Status}))
	}

	require.NoError(t, s.Tickets().Delete(ctx, drop.ID))

	_, err := s.Tickets().GetByID(ctx, drop.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	grouped, err := s.StatusHistory().ListByTickets(ctx, []string{keep.ID, drop.ID})
	require.NoError(t, err)
	assert.Len(t, grouped[keep.ID], 1)
	assert.Empty(t, grouped[drop.ID])

	assert.ErrorIs(t, s.Tickets().Delete(ctx, drop.ID), repository.ErrNotFound)
}

func TestDeleteUserKeepsForeignHistory(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	owner := newUser(t, s, "alice")
	staff := newUser(t, s, "bob")
	ticket := newTicket(t, s, owner, "printer", domain.CategoryTechnical, domain.TicketStatusNew)
	staffTicket := newTicket(t, s, staff, "own", domain.CategoryProduct, domain.TicketStatusNew)
	require.NoError(t, s.StatusHistory().Append(ctx, &domain.StatusHistoryEntry{TicketID: ticket.ID, Status: domain.TicketStatusUnderReview, ChangedByID: &staff.ID}))

	require.NoError(t, s.Users().Delete(ctx, staff.ID))

	history, err := s.StatusHistory().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].ChangedByID)
	assert.Nil(t, history[0].ChangedBy)

	_, err = s.Tickets().GetByID(ctx, staffTicket.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListFiltersOrdersAndPages(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.now = tickingClock()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	first := newTicket(t, s, alice, "VPN broken", domain.CategoryTechnical, domain.TicketStatusResolved)
	second := newTicket(t, s, bob, "Refund request", domain.CategoryFinancial, domain.TicketStatusNew)
	third := newTicket(t, s, alice, "Feature idea", domain.CategoryProduct, domain.TicketStatusUnderReview)

	ids := func(tickets []domain.Ticket) []string {
		out := make([]string, 0, len(tickets))
		for _, ticket := range tickets {
			out = append(out, ticket.ID)
		}
		return out
	}

	t.Run("default newest first", func(t *testing.T) {
		got, err := s.Tickets().List(ctx, repository.TicketFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{third.ID, second.ID, first.ID}, ids(got))
	})

	t.Run("oldest first", func(t *testing.T) {
		got, err := s.Tickets().List(ctx, repository.TicketFilter{Ordering: repository.OrderCreatedAtAsc})
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, second.ID, third.ID}, ids(got))
	})

	t.Run("by status", func(t *testing.T) {
		got, err := s.Tickets().List(ctx, repository.TicketFilter{Ordering: repository.OrderStatusAsc})
		require.NoError(t, err)
		assert.Equal(t, []string{second.ID, first.ID, third.ID}, ids(got))
	})

	t.Run("scope and search", func(t *testing.T) {
		term := "vpn"
		got, err := s.Tickets().List(ctx, repository.TicketFilter{CreatedByID: &alice.ID, SearchTerm: &term})
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID}, ids(got))
	})

	t.Run("search matches description", func(t *testing.T) {
		term := "REFUND REQUEST DETAILS"
		got, err := s.Tickets().List(ctx, repository.TicketFilter{SearchTerm: &term})
		require.NoError(t, err)
		assert.Equal(t, []string{second.ID}, ids(got))
	})

	t.Run("category and status", func(t *testing.T) {
		category := domain.CategoryProduct
		status := domain.TicketStatusUnderReview
		got, err := s.Tickets().List(ctx, repository.TicketFilter{Category: &category, Status: &status})
		require.NoError(t, err)
		assert.Equal(t, []string{third.ID}, ids(got))
	})

	t.Run("paging", func(t *testing.T) {
		got, err := s.Tickets().List(ctx, repository.TicketFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID}, ids(got))

		total, err := s.Tickets().Count(ctx, repository.TicketFilter{CreatedByID: &alice.ID})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})
}

func TestUsersRejectDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	newUser(t, s, "alice")

	err := s.Users().Create(ctx, &domain.User{Username: "alice"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	found, err := s.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", found.Email)

	_, err = s.Users().GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

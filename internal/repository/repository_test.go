package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestParseTicketOrdering(t *testing.T) {
	assert.Equal(t, OrderCreatedAtDesc, ParseTicketOrdering(""))
	assert.Equal(t, OrderCreatedAtDesc, ParseTicketOrdering("title"))
	assert.Equal(t, OrderCreatedAtDesc, ParseTicketOrdering("created_at; DROP TABLE tickets"))
	assert.Equal(t, OrderCreatedAtAsc, ParseTicketOrdering("created_at"))
	assert.Equal(t, OrderStatusDesc, ParseTicketOrdering(" -status "))
}

func TestFilterClauses(t *testing.T) {
	owner := "8d1f6a2e-3f7b-4f0c-9a38-6c1f2a3b4c5d"
	category := domain.CategoryFinancial
	status := domain.TicketStatusUnderReview
	search := " 50%_Off "

	where, args := filterClauses(TicketFilter{
		CreatedByID: &owner,
		Category:    &category,
		Status:      &status,
		SearchTerm:  &search,
	})

	assert.Equal(t,
		`1=1 AND t.created_by=$1 AND t.category=$2 AND t.status=$3 AND (LOWER(t.title) LIKE $4 ESCAPE '\' OR LOWER(t.description) LIKE $4 ESCAPE '\')`,
		where)
	assert.Equal(t, []any{owner, category, status, `%50\%\_off%`}, args)
}

func TestFilterClausesIgnoresBlankSearch(t *testing.T) {
	blank := "   "
	where, args := filterClauses(TicketFilter{SearchTerm: &blank})
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("8d1f6a2e-3f7b-4f0c-9a38-6c1f2a3b4c5d"))
	assert.False(t, validID("42"))
	assert.False(t, validID(""))
}

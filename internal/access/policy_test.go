package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestAuthorize(t *testing.T) {
	policy, err := NewPolicy()
	require.NoError(t, err)

	user := &domain.User{ID: "u1"}
	staff := &domain.User{ID: "s1", IsStaff: true}

	tests := []struct {
		action  Action
		userOK  bool
		staffOK bool
	}{
		{ActionCreate, true, true},
		{ActionList, true, true},
		{ActionRead, true, true},
		{ActionUpdate, false, true},
		{ActionDelete, false, true},
		{ActionSetStatus, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			err := policy.Authorize(user, tt.action)
			if tt.userOK {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "got %v", err)
			}

			err = policy.Authorize(staff, tt.action)
			if tt.staffOK {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
			}
		})
	}
}

func TestAuthorizeRequiresCaller(t *testing.T) {
	policy := MustNewPolicy()
	for _, action := range []Action{ActionCreate, ActionList, ActionUpdate} {
		err := policy.Authorize(nil, action)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	}
	err := policy.AuthorizeTicket(nil, &domain.Ticket{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestAuthorizeUnknownActionIsForbidden(t *testing.T) {
	policy := MustNewPolicy()
	err := policy.Authorize(&domain.User{ID: "s1", IsStaff: true}, Action("export"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestAuthorizeTicket(t *testing.T) {
	policy := MustNewPolicy()
	ticket := &domain.Ticket{ID: "t1", CreatedByID: "owner"}

	assert.NoError(t, policy.AuthorizeTicket(&domain.User{ID: "owner"}, ticket))
	assert.NoError(t, policy.AuthorizeTicket(&domain.User{ID: "staff", IsStaff: true}, ticket))

	err := policy.AuthorizeTicket(&domain.User{ID: "stranger"}, ticket)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestListScope(t *testing.T) {
	assert.Nil(t, ListScope(&domain.User{ID: "s1", IsStaff: true}))

	scope := ListScope(&domain.User{ID: "u1"})
	require.NotNil(t, scope)
	assert.Equal(t, "u1", *scope)
}

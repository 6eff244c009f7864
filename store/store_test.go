package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivetrack/dirsync/reconcile"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open store")
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(), "failed to migrate store")
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestCreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, reconcile.User{
		LoginEmail:    "ann@example.com",
		ExternalID:    "U1",
		DisplayName:   "Ann Example",
		CryptPassword: "*",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	byEmail, err := s.UserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, *created, *byEmail)

	// Lookup by email is case-sensitive by design.
	wrongCase, err := s.UserByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	assert.Nil(t, wrongCase)

	byID, err := s.UserByExternalID(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, created.ID, byID.ID)

	missing, err := s.UserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateEmailRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, reconcile.User{LoginEmail: "ann@example.com", ExternalID: "U1"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, reconcile.User{LoginEmail: "ann@example.com", ExternalID: "U2"})
	assert.Error(t, err)
}

func TestEmptyExternalIDIsNotUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, reconcile.User{LoginEmail: "one@example.com"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, reconcile.User{LoginEmail: "two@example.com"})
	require.NoError(t, err, "empty external ids must not collide")

	// And an empty external id never matches a lookup.
	u, err := s.UserByExternalID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUpdateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, reconcile.User{LoginEmail: "old@example.com", ExternalID: "U1"})
	require.NoError(t, err)

	u.LoginEmail = "new@example.com"
	u.DisplayName = "Renamed"
	u.DisabledReason = "account retired"
	require.NoError(t, s.UpdateUser(ctx, u))

	got, err := s.UserByExternalID(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new@example.com", got.LoginEmail)
	assert.Equal(t, "Renamed", got.DisplayName)
	assert.Equal(t, "account retired", got.DisabledReason)
}

func TestAllUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := s.CreateUser(ctx, reconcile.User{LoginEmail: email})
		require.NoError(t, err)
	}

	users, err := s.AllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "a@example.com", users[0].LoginEmail)
	assert.Equal(t, "c@example.com", users[2].LoginEmail)
}

func TestResponsibilities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner, err := s.CreateUser(ctx, reconcile.User{LoginEmail: "owner@example.com"})
	require.NoError(t, err)
	other, err := s.CreateUser(ctx, reconcile.User{LoginEmail: "other@example.com"})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `
INSERT INTO components (product, name, default_assignee, qa_contact) VALUES
	('Widgets', 'Frobnicator', ?, NULL),
	('Widgets', 'Deluxifier', NULL, ?),
	('Gadgets', 'Spinner', ?, ?)`,
		owner.ID, owner.ID, other.ID, other.ID)
	require.NoError(t, err)

	owned, err := s.Responsibilities(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Ownership{
		{Product: "Widgets", Component: "Deluxifier"},
		{Product: "Widgets", Component: "Frobnicator"},
	}, owned)

	free, err := s.CreateUser(ctx, reconcile.User{LoginEmail: "free@example.com"})
	require.NoError(t, err)
	none, err := s.Responsibilities(ctx, free)
	require.NoError(t, err)
	assert.Empty(t, none)
}

package reconcile

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptySource() []SourceBinding {
	return bind(&fakeSource{name: "empty"})
}

func TestDisableAbsentAccount(t *testing.T) {
	st := newFakeStore(User{LoginEmail: "gone@example.com", ExternalID: "U9"})
	r := New(st, nil, Modes{}, nil)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return ts }

	stat, err := r.Run(context.Background(), emptySource())
	require.NoError(t, err)

	assert.Equal(t, []string{"gone@example.com"}, stat.Disabled)
	require.Equal(t, 1, st.updates)
	assert.Equal(t, disableReason+"2024-03-01T12:00:00Z", st.users[0].DisabledReason)
}

func TestDisableSkipsAllowListed(t *testing.T) {
	st := newFakeStore(
		User{LoginEmail: "admin@example.com"},
		User{LoginEmail: "svc-backup@example.com"},
		User{LoginEmail: "gone@example.com"},
	)
	allow := []string{"admin@example.com", "svc-*"}

	stat, err := New(st, nil, Modes{}, allow).Run(context.Background(), emptySource())
	require.NoError(t, err)

	assert.Equal(t, []string{"gone@example.com"}, stat.Disabled)
	assert.Empty(t, st.users[0].DisabledReason)
	assert.Empty(t, st.users[1].DisabledReason)
}

func TestDisableNeverTouchesComponentOwners(t *testing.T) {
	st := newFakeStore(User{LoginEmail: "owner@example.com"})
	st.owned = map[string][]Ownership{
		"owner@example.com": {
			{Product: "Widgets", Component: "Frobnicator"},
			{Product: "Widgets", Component: "Deluxifier"},
		},
	}
	var logBuf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &logBuf, Level: hclog.Warn})

	stat, err := New(st, logger, Modes{}, nil).Run(context.Background(), emptySource())
	require.NoError(t, err)

	assert.Empty(t, stat.Disabled)
	assert.Zero(t, st.updates)
	assert.Empty(t, st.users[0].DisabledReason)
	assert.Contains(t, logBuf.String(), "Frobnicator")
	assert.Contains(t, logBuf.String(), "Deluxifier")
}

func TestDisableIsIdempotent(t *testing.T) {
	st := newFakeStore(User{
		LoginEmail:     "gone@example.com",
		DisabledReason: disableReason + "2023-11-05T09:30:00Z",
	})

	stat, err := New(st, nil, Modes{}, nil).Run(context.Background(), emptySource())
	require.NoError(t, err)

	assert.Empty(t, stat.Disabled)
	assert.Zero(t, st.updates)
}

func TestDisableDryRun(t *testing.T) {
	st := newFakeStore(User{LoginEmail: "gone@example.com"})

	stat, err := New(st, nil, Modes{NoApply: true}, nil).Run(context.Background(), emptySource())
	require.NoError(t, err)

	assert.Equal(t, []string{"gone@example.com"}, stat.Disabled)
	assert.Zero(t, st.updates)
	assert.Empty(t, st.users[0].DisabledReason)
}

// Email lookups are case-sensitive while the absence test is caseless, so
// a case-divergent directory record creates a sibling account yet still
// exempts the old one from disabling. Preserved behavior of the original
// tool; do not "fix" one side without the other.
func TestCaseAsymmetry(t *testing.T) {
	st := newFakeStore(User{LoginEmail: "Mixed@Case.com", ExternalID: "U1"})
	src := &fakeSource{name: "dir", pages: [][]RawEntry{{
		entry("U2", "Mixed", "mixed@case.com"),
	}}}

	stat, err := New(st, nil, Modes{}, nil).Run(context.Background(), bind(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"mixed@case.com"}, stat.Added)
	require.Len(t, st.users, 2)
	assert.Empty(t, stat.Disabled)
	assert.Empty(t, st.users[0].DisabledReason)
}

func TestMatchesAllowList(t *testing.T) {
	allow := []string{"root@example.com", "svc-*", "bot-"}
	tests := []struct {
		email string
		want  bool
	}{
		{"root@example.com", true},
		{"Root@example.com", false},
		{"svc-backup@example.com", true},
		{"svc-@example.com", true},
		{"bot-crawler@example.com", false},
		{"bot-", true},
		{"person@example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesAllowList(allow, tt.email), "email %q", tt.email)
	}
}

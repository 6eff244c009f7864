package reconcile

import (
	"context"
	"errors"
)

// RawEntry is one directory entry as delivered by a source: the entry's
// distinguished name plus its attribute multimap. Sources convert their
// native entry types into this shape at the boundary so nothing downstream
// queries attributes through a client library.
type RawEntry struct {
	DN         string
	Attributes map[string][]string
}

// First returns the first value of the named attribute, or "" when the
// attribute is absent or empty.
func (e RawEntry) First(name string) string {
	if vs, ok := e.Attributes[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// AttributeMap names the directory attributes that carry the semantic
// fields of an account record.
type AttributeMap struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Disabled    string `json:"disabled"`
}

// Record is the normalized projection of one directory entry.
type Record struct {
	ExternalID  string
	Email       string
	DisplayName string
	Disabled    bool
}

// User is one account in the target store. DisabledReason non-empty means
// the account is disabled; CryptPassword is an opaque credential marker.
type User struct {
	ID             int64  `db:"id"`
	LoginEmail     string `db:"login_email"`
	ExternalID     string `db:"external_id"`
	DisplayName    string `db:"display_name"`
	DisabledReason string `db:"disabled_reason"`
	CryptPassword  string `db:"crypt_password"`
}

// Ownership is one component-ownership responsibility of a user: the user
// is the default assignee or QA contact for the named component.
type Ownership struct {
	Product   string `db:"product"`
	Component string `db:"component"`
}

// ErrAmbiguousMatch reports more than one store record for a key that the
// store is expected to keep unique. It is treated as data corruption and
// aborts the whole run.
var ErrAmbiguousMatch = errors.New("multiple user records match a unique key")

// UserStore is the narrow view of the target user repository the
// reconciliation needs. Lookups return (nil, nil) when no record matches
// and ErrAmbiguousMatch when more than one does.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByExternalID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u User) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	AllUsers(ctx context.Context) ([]User, error)
	Responsibilities(ctx context.Context, u *User) ([]Ownership, error)
}

// Source is one configured directory endpoint. Entries drives the
// endpoint's pagination to completion, invoking fn once per raw entry in
// server order. A non-nil error from fn or from the directory aborts the
// traversal (after the source releases any server-side paging state) and
// is returned as fatal for this source.
type Source interface {
	Name() string
	Entries(ctx context.Context, fn func(RawEntry) error) error
}

// Modes are the orthogonal run switches.
type Modes struct {
	// DumpOnly bypasses reconciliation and writes raw entries out.
	DumpOnly bool
	// NoApply suppresses every mutation while keeping the full decision
	// logic, counters and processed set.
	NoApply bool
	// NoUpdate suppresses only the conflict-repair update.
	NoUpdate bool
	// ReportAll logs records that already exist in the store.
	ReportAll bool
}

// Stat is the outcome of one reconciliation run.
type Stat struct {
	Processed int
	Skipped   int
	Added     []string
	Updated   []string
	Invalid   []string
	Disabled  []string
	Failed    []string
}

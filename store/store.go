// Package store is the SQL adapter for the target user repository.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hivetrack/dirsync/reconcile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const currentSchemaVersion = 1

// An empty external id is stored as NULL so the UNIQUE constraint only
// applies to accounts that actually carry one.
const userColumns = `id, login_email, COALESCE(external_id, '') AS external_id, display_name, disabled_reason, crypt_password`

// Store implements reconcile.UserStore on an SQLite database.
type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open user store %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	dbDriver, err := sqlite3.WithInstance(s.db.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	migrator, err := migrate.NewWithInstance("iofs", src, "user_store", dbDriver)
	if err != nil {
		return err
	}
	if err := migrator.Migrate(currentSchemaVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// UserByEmail looks up an account by its exact login email. The
// comparison is case-sensitive. Returns (nil, nil) when absent and
// reconcile.ErrAmbiguousMatch when the unique constraint turns out to be
// violated.
func (s *Store) UserByEmail(ctx context.Context, email string) (*reconcile.User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE login_email = ? LIMIT 2`, email)
}

// UserByExternalID looks up an account by its directory-assigned
// identity.
func (s *Store) UserByExternalID(ctx context.Context, id string) (*reconcile.User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ? LIMIT 2`, id)
}

func (s *Store) one(ctx context.Context, query string, arg any) (*reconcile.User, error) {
	var users []reconcile.User
	if err := s.db.SelectContext(ctx, &users, query, arg); err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, nil
	case 1:
		return &users[0], nil
	default:
		return nil, reconcile.ErrAmbiguousMatch
	}
}

func (s *Store) CreateUser(ctx context.Context, u reconcile.User) (*reconcile.User, error) {
	res, err := s.db.NamedExecContext(ctx, `
INSERT INTO users (login_email, external_id, display_name, disabled_reason, crypt_password)
VALUES (:login_email, NULLIF(:external_id, ''), :display_name, :disabled_reason, :crypt_password)`, u)
	if err != nil {
		return nil, err
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *reconcile.User) error {
	_, err := s.db.NamedExecContext(ctx, `
UPDATE users
SET login_email     = :login_email,
    external_id     = NULLIF(:external_id, ''),
    display_name    = :display_name,
    disabled_reason = :disabled_reason,
    crypt_password  = :crypt_password
WHERE id = :id`, u)
	return err
}

func (s *Store) AllUsers(ctx context.Context) ([]reconcile.User, error) {
	var users []reconcile.User
	err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Responsibilities lists the components the user is the default assignee
// or QA contact for.
func (s *Store) Responsibilities(ctx context.Context, u *reconcile.User) ([]reconcile.Ownership, error) {
	var owned []reconcile.Ownership
	err := s.db.SelectContext(ctx, &owned, `
SELECT product, name AS component FROM components
WHERE default_assignee = ? OR qa_contact = ?
ORDER BY product, name`, u.ID, u.ID)
	if err != nil {
		return nil, err
	}
	return owned, nil
}

// Package reconcile drives one reconciliation run: every configured
// directory source is drained page by page and its account records are
// matched against the target user store, then accounts that no source
// mentioned are disabled. The directory is always the authoritative
// side; the store is only ever created into, corrected or disabled,
// never deleted from.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SourceBinding pairs a directory source with the attribute mapping used
// to normalize its entries.
type SourceBinding struct {
	Source  Source
	Mapping AttributeMap
}

// Reconciler holds the state of one run. It is not safe for concurrent
// use; a run is strictly sequential by design.
type Reconciler struct {
	store UserStore
	log   hclog.Logger
	modes Modes
	allow []string
	now   func() time.Time

	processed Set[string]
	stat      Stat
}

// New returns a Reconciler writing to store. localUsers is the allow-list
// of accounts that are intentionally absent from every directory (service
// accounts, local admin) and must never be disabled.
func New(store UserStore, logger hclog.Logger, modes Modes, localUsers []string) *Reconciler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reconciler{
		store: store,
		log:   logger,
		modes: modes,
		allow: localUsers,
		now:   time.Now,
	}
}

// Run drains every source in order, reconciling each normalized record
// against the store, and finishes with the disable pass. Any directory
// error, and any ambiguous store match, aborts the run; the disable pass
// only executes after every source completed. The returned Stat is valid
// only on a nil error.
func (r *Reconciler) Run(ctx context.Context, sources []SourceBinding) (*Stat, error) {
	// Refuse an empty source list: with nothing processed the disable
	// pass would shut down every account in the store.
	if len(sources) == 0 {
		return nil, fmt.Errorf("no directory sources configured")
	}

	r.processed = NewSet[string]()
	r.stat = Stat{}

	for _, sb := range sources {
		lg := r.log.Named(sb.Source.Name())
		lg.Info("reconciling directory source")
		err := sb.Source.Entries(ctx, func(e RawEntry) error {
			rec := Normalize(e, sb.Mapping)
			if err := r.apply(ctx, lg, rec); err != nil {
				return err
			}
			// The processed set feeds the disable pass and is kept
			// accurate in every mode, dry runs included. Unlike the
			// store lookup above, membership is caseless.
			if rec.Email != "" {
				r.processed.Add(FoldEmail(rec.Email))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sb.Source.Name(), err)
		}
	}

	if err := r.disableAbsent(ctx); err != nil {
		return nil, err
	}
	return &r.stat, nil
}

// apply executes the per-record decision: present by email, present by
// external identity under a different email, or genuinely new. Store
// write failures are recorded and skipped; lookup failures abort the run.
func (r *Reconciler) apply(ctx context.Context, lg hclog.Logger, rec Record) error {
	r.stat.Processed++

	if rec.Disabled {
		// The directory flags the account disabled, but creation is not
		// suppressed: disabling is decided solely by the absence pass.
		lg.Warn("directory account carries the disabled bit", "email", rec.Email)
	}

	existing, err := r.store.UserByEmail(ctx, rec.Email)
	if err != nil {
		return fmt.Errorf("lookup by email %q: %w", rec.Email, err)
	}
	if existing != nil {
		r.stat.Skipped++
		if r.modes.ReportAll {
			lg.Info("account already present", "email", rec.Email)
		}
		return nil
	}

	if rec.ExternalID != "" {
		byID, err := r.store.UserByExternalID(ctx, rec.ExternalID)
		if err != nil {
			return fmt.Errorf("lookup by external id %q: %w", rec.ExternalID, err)
		}
		if byID != nil {
			// Same external identity, different login literal: the two
			// systems drifted apart. Surfaced loudly in every mode.
			lg.Warn("external identity bound to a different login",
				"external_id", rec.ExternalID,
				"store_email", byID.LoginEmail,
				"directory_email", rec.Email)
			// The store-side login is the same identity; exempt it from
			// the disable pass even when the repair is suppressed.
			r.processed.Add(FoldEmail(byID.LoginEmail))
			if r.modes.NoUpdate {
				return nil
			}
			if !r.modes.NoApply {
				byID.LoginEmail = rec.Email
				byID.DisplayName = rec.DisplayName
				if err := r.store.UpdateUser(ctx, byID); err != nil {
					lg.Error("login repair failed", "email", rec.Email, "error", err)
					r.stat.Failed = append(r.stat.Failed, rec.Email)
					return nil
				}
			}
			r.stat.Updated = append(r.stat.Updated, rec.Email)
			return nil
		}
	}

	if rec.ExternalID == "" || !validEmail.MatchString(rec.Email) {
		r.stat.Invalid = append(r.stat.Invalid, rec.Email)
		return nil
	}

	if !r.modes.NoApply {
		u := User{
			LoginEmail:  rec.Email,
			DisplayName: rec.DisplayName,
			ExternalID:  rec.ExternalID,
			// Locked credential marker: the account can only ever
			// authenticate against the directory.
			CryptPassword: "*",
		}
		if _, err := r.store.CreateUser(ctx, u); err != nil {
			lg.Error("create failed", "email", rec.Email, "error", err)
			r.stat.Failed = append(r.stat.Failed, rec.Email)
			return nil
		}
	}
	r.stat.Added = append(r.stat.Added, rec.Email)
	return nil
}

// Dump writes every raw entry of every source to w, bypassing
// reconciliation entirely.
func Dump(ctx context.Context, w io.Writer, sources []SourceBinding) error {
	for _, sb := range sources {
		err := sb.Source.Entries(ctx, func(e RawEntry) error {
			fmt.Fprintf(w, "dn: %s\n", e.DN)
			names := make([]string, 0, len(e.Attributes))
			for name := range e.Attributes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				for _, v := range e.Attributes[name] {
					fmt.Fprintf(w, "%s: %s\n", name, v)
				}
			}
			fmt.Fprintln(w)
			return nil
		})
		if err != nil {
			return fmt.Errorf("source %q: %w", sb.Source.Name(), err)
		}
	}
	return nil
}

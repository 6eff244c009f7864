package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// disableReason prefixes the timestamped reason written onto accounts
// disabled by the absence pass.
const disableReason = "account no longer present in any directory source, disabled "

// disableAbsent enumerates the whole store and disables every active
// account that no directory source mentioned during this run. Disabling
// is the destructive side of reconciliation, so it sits behind the full
// guard chain: processed-set membership, the local-account allow-list,
// already-disabled idempotence and the component-ownership check.
func (r *Reconciler) disableAbsent(ctx context.Context) error {
	lg := r.log.Named("disable")

	users, err := r.store.AllUsers(ctx)
	if err != nil {
		return fmt.Errorf("enumerate users: %w", err)
	}

	for i := range users {
		u := &users[i]
		if r.processed.Has(FoldEmail(u.LoginEmail)) {
			continue
		}
		if matchesAllowList(r.allow, u.LoginEmail) {
			lg.Info("local account exempt from disabling", "email", u.LoginEmail)
			continue
		}
		if u.DisabledReason != "" {
			lg.Debug("already disabled", "email", u.LoginEmail)
			continue
		}

		owned, err := r.store.Responsibilities(ctx, u)
		if err != nil {
			return fmt.Errorf("responsibilities of %q: %w", u.LoginEmail, err)
		}
		if len(owned) > 0 {
			// An operator has to reassign these before the account can
			// be disabled safely.
			for _, o := range owned {
				lg.Warn("account absent from directory but owns a component",
					"email", u.LoginEmail, "product", o.Product, "component", o.Component)
			}
			continue
		}

		if !r.modes.NoApply {
			u.DisabledReason = disableReason + r.now().Format(time.RFC3339)
			if err := r.store.UpdateUser(ctx, u); err != nil {
				lg.Error("disable failed", "email", u.LoginEmail, "error", err)
				r.stat.Failed = append(r.stat.Failed, u.LoginEmail)
				continue
			}
		}
		lg.Info("disabled", "email", u.LoginEmail)
		r.stat.Disabled = append(r.stat.Disabled, u.LoginEmail)
	}
	return nil
}

// matchesAllowList reports whether email is covered by the local-account
// allow-list: an exact entry, or a prefix entry written with a trailing
// "*".
func matchesAllowList(allow []string, email string) bool {
	for _, a := range allow {
		if prefix, ok := strings.CutSuffix(a, "*"); ok {
			if strings.HasPrefix(email, prefix) {
				return true
			}
			continue
		}
		if email == a {
			return true
		}
	}
	return false
}

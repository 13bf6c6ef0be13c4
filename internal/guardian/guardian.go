// Package guardian enforces account invariants: exactly one primordial
// administrator with the right role and approval status, and no malformed
// records. Violations are repaired, not just reported.
package guardian

import (
	"github.com/rs/zerolog"

	"github.com/shareport/shareport/internal/catalog"
)

// Guardian verifies and repairs account lists.
type Guardian struct {
	// bootstrapCredential is the already-hashed credential given to a
	// synthesized administrator. Raw secrets never reach this layer; the
	// caller hashes the configured bootstrap password before construction.
	bootstrapCredential string
	logger              zerolog.Logger
}

// New creates a Guardian. bootstrapCredential must be an opaque hash.
func New(bootstrapCredential string, logger zerolog.Logger) *Guardian {
	return &Guardian{
		bootstrapCredential: bootstrapCredential,
		logger:              logger.With().Str("component", "guardian").Logger(),
	}
}

// Verify repairs an account list and reports whether anything changed.
// Repairs performed:
//   - accounts missing a login name or credential are dropped
//   - a missing primordial administrator is synthesized
//   - a demoted or unapproved primordial administrator is coerced back
//   - duplicate primordial administrators beyond the first are dropped
//
// The input slice is not mutated; accounts that need changes are copied.
func (g *Guardian) Verify(accounts []*catalog.Account) ([]*catalog.Account, bool) {
	changed := false
	out := make([]*catalog.Account, 0, len(accounts))

	var admin *catalog.Account
	var maxID int64
	for _, a := range accounts {
		if a == nil || a.Username == "" || a.Password == "" {
			changed = true
			g.logger.Warn().Interface("account", a).Msg("Dropping malformed account record")
			continue
		}
		if a.ID > maxID {
			maxID = a.ID
		}
		if a.IsPrimordialAdmin() {
			if admin != nil {
				changed = true
				g.logger.Warn().Int64("id", a.ID).Msg("Dropping duplicate administrator record")
				continue
			}
			repaired := *a
			if coerceAdmin(&repaired) {
				changed = true
				g.logger.Warn().Int64("id", a.ID).
					Str("role", string(a.Role)).Str("status", string(a.Status)).
					Msg("Coerced administrator role and approval status")
			}
			admin = &repaired
			out = append(out, admin)
			continue
		}
		out = append(out, a)
	}

	if admin == nil {
		changed = true
		synthesized := &catalog.Account{
			ID:         maxID + 1,
			Username:   catalog.AdminUsername,
			Password:   g.bootstrapCredential,
			Role:       catalog.RoleAdmin,
			Status:     catalog.StatusApproved,
			IsApproved: true,
		}
		out = append(out, synthesized)
		g.logger.Warn().Int64("id", synthesized.ID).
			Msg("Administrator account missing, synthesized with bootstrap credential")
	}

	return out, changed
}

// coerceAdmin forces the administrator invariant fields. Returns true if
// the record had drifted.
func coerceAdmin(a *catalog.Account) bool {
	changed := false
	if a.Role != catalog.RoleAdmin {
		a.Role = catalog.RoleAdmin
		changed = true
	}
	if a.Status != catalog.StatusApproved {
		a.Status = catalog.StatusApproved
		changed = true
	}
	if !a.IsApproved {
		a.IsApproved = true
		changed = true
	}
	return changed
}

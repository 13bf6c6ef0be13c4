package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shareport/shareport/internal/audit"
	"github.com/shareport/shareport/internal/persist"
)

// Account mutations run the guardian after every change and are persisted
// synchronously: losing an account write to a crash could violate the
// administrator invariant, so these paths await durability.

// ListAccounts returns all accounts ordered by identifier. Callers must not
// expose the credential field; the route layer maps to a response shape
// without it.
func (f *Facade) ListAccounts() []Account {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingAccounts returns accounts awaiting approval.
func (f *Facade) PendingAccounts() []Account {
	var out []Account
	for _, a := range f.ListAccounts() {
		if a.Status == StatusPending {
			out = append(out, a)
		}
	}
	return out
}

// GetAccount returns an account by identifier.
func (f *Facade) GetAccount(id int64) (Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	a, ok := f.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return *a, nil
}

// GetAccountByUsername returns an account by login name. Lookup is
// case-sensitive; login names are globally unique.
func (f *Facade) GetAccountByUsername(username string) (Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, a := range f.accounts {
		if a.Username == username {
			return *a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: account %q", ErrNotFound, username)
}

// Register creates a pending user account. credential must already be an
// opaque hash; raw secrets never reach the catalog.
func (f *Facade) Register(ctx context.Context, username, credential string) (Account, error) {
	if username == "" || credential == "" {
		return Account{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	if _, err := f.GetAccountByUsername(username); err == nil {
		return Account{}, fmt.Errorf("%w: username %q is taken", ErrConflict, username)
	}

	f.mu.Lock()
	account := &Account{
		ID:       f.nextAccountID,
		Username: username,
		Password: credential,
		Role:     RoleUser,
		Status:   StatusPending,
	}
	f.nextAccountID++
	f.accounts[account.ID] = account
	result := *account
	f.mu.Unlock()

	if err := f.verifyAndPersistAccounts(ctx); err != nil {
		return Account{}, err
	}
	f.emit(audit.KindUserMgmt, fmt.Sprintf("registered %s", username), username, map[string]string{
		"user_id": fmt.Sprintf("%d", result.ID),
	})
	return result, nil
}

// ApproveUser marks a pending account approved.
func (f *Facade) ApproveUser(ctx context.Context, id int64, actor string) (Account, error) {
	status := StatusApproved
	return f.patchAccount(ctx, id, actor, "approved", AccountPatch{Status: &status}, false)
}

// RejectUser marks an account rejected. The primordial administrator cannot
// be rejected; the guardian would immediately undo it, so the request is
// refused outright instead.
func (f *Facade) RejectUser(ctx context.Context, id int64, actor string) (Account, error) {
	status := StatusRejected
	return f.patchAccount(ctx, id, actor, "rejected", AccountPatch{Status: &status}, true)
}

// GrantAdmin gives an account the admin role.
func (f *Facade) GrantAdmin(ctx context.Context, id int64, actor string) (Account, error) {
	role := RoleAdmin
	return f.patchAccount(ctx, id, actor, "granted admin to", AccountPatch{Role: &role}, false)
}

// RevokeAdmin removes the admin role. Refused for the primordial
// administrator.
func (f *Facade) RevokeAdmin(ctx context.Context, id int64, actor string) (Account, error) {
	role := RoleUser
	return f.patchAccount(ctx, id, actor, "revoked admin from", AccountPatch{Role: &role}, true)
}

// patchAccount applies a field patch to an account, guards the primordial
// administrator where required, runs the guardian and persists.
func (f *Facade) patchAccount(ctx context.Context, id int64, actor, verb string, patch AccountPatch, protected bool) (Account, error) {
	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	f.mu.Lock()
	a, ok := f.accounts[id]
	if !ok {
		f.mu.Unlock()
		return Account{}, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if protected && a.IsPrimordialAdmin() {
		f.mu.Unlock()
		return Account{}, fmt.Errorf("%w: the administrator account cannot be modified this way", ErrForbidden)
	}
	ApplyAccountPatch(a, patch)
	result := *a
	f.mu.Unlock()

	if err := f.verifyAndPersistAccounts(ctx); err != nil {
		return Account{}, err
	}
	f.emit(audit.KindUserMgmt, fmt.Sprintf("%s %s", verb, result.Username), actor, map[string]string{
		"user_id": fmt.Sprintf("%d", id),
		"role":    string(result.Role),
		"status":  string(result.Status),
	})
	return result, nil
}

// DeleteAccount removes an account entirely. Refused for the primordial
// administrator.
func (f *Facade) DeleteAccount(ctx context.Context, id int64, actor string) error {
	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	f.mu.Lock()
	a, ok := f.accounts[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if a.IsPrimordialAdmin() {
		f.mu.Unlock()
		return fmt.Errorf("%w: the administrator account cannot be deleted", ErrForbidden)
	}
	username := a.Username
	delete(f.accounts, id)
	f.mu.Unlock()

	if err := f.verifyAndPersistAccounts(ctx); err != nil {
		return err
	}
	f.emit(audit.KindUserMgmt, fmt.Sprintf("deleted account %s", username), actor, map[string]string{
		"user_id": fmt.Sprintf("%d", id),
	})
	return nil
}

// verifyAndPersistAccounts runs the guardian over the current account list,
// commits any repairs, and durably persists. Exhausted retries surface as
// ErrFatal; the mutation that triggered the persist fails but the process
// stays up.
func (f *Facade) verifyAndPersistAccounts(ctx context.Context) error {
	f.mu.Lock()
	list := make([]*Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	repaired, changed := f.verifier.Verify(list)
	if changed {
		f.accounts = make(map[int64]*Account, len(repaired))
		for _, a := range repaired {
			f.accounts[a.ID] = a
			if a.ID >= f.nextAccountID {
				f.nextAccountID = a.ID + 1
			}
		}
		list = repaired
	}
	f.mu.Unlock()

	return f.persistAccounts(ctx, list...)
}

// persistAccounts durably writes the accounts document. Verification checks
// the entry count and the presence of the administrator record.
func (f *Facade) persistAccounts(ctx context.Context, list ...*Account) error {
	if len(list) == 0 {
		for _, a := range f.ListAccounts() {
			cp := a
			list = append(list, &cp)
		}
	}
	payload, err := f.codec.EncodeAccounts(list)
	if err != nil {
		return err
	}
	verify := func(data []byte) error {
		parsed, err := f.codec.DecodeAccounts(data)
		if err != nil {
			return err
		}
		if len(parsed) != len(list) {
			return fmt.Errorf("account count mismatch: wrote %d, read %d", len(list), len(parsed))
		}
		for _, a := range parsed {
			if a.IsPrimordialAdmin() {
				return nil
			}
		}
		return errors.New("administrator record missing after write")
	}
	if err := f.store.Persist(ctx, f.codec.Layout().AccountsPath(), payload, verify); err != nil {
		if errors.Is(err, persist.ErrRetriesExhausted) {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		return err
	}
	return nil
}

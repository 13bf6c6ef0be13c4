package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shareport/shareport/internal/audit"
	"github.com/shareport/shareport/internal/gateway"
	"github.com/shareport/shareport/internal/persist"
)

// Emitter receives an audit event after every successful mutation.
// Delivery and storage of events are downstream concerns.
type Emitter interface {
	Emit(kind, message, actor string, details map[string]string)
}

// AccountVerifier repairs an account list to satisfy the administrator
// invariant. Implemented by the guardian package.
type AccountVerifier interface {
	Verify(accounts []*Account) ([]*Account, bool)
}

// Facade is the public catalog surface consumed by the route layer. It
// exclusively owns the in-memory maps; the reconciler and guardian compute
// proposed states and hand them back here to commit.
//
// Concurrency: mutateMu serializes mutations end to end, including their
// remote I/O, so no two mutations interleave. mu guards the maps with much
// shorter critical sections so read queries never wait on remote calls.
type Facade struct {
	gw       *gateway.Gateway
	codec    *Codec
	store    *persist.Controller
	verifier AccountVerifier
	emitter  Emitter
	logger   zerolog.Logger

	mutateMu sync.Mutex
	mu       sync.RWMutex

	files    map[int64]*CatalogEntry
	byKey    map[string]int64 // active entries only
	accounts map[int64]*Account

	nextFileID    int64
	nextAccountID int64
}

// NewFacade wires the catalog facade. All collaborators are injected; there
// is no ambient global instance.
func NewFacade(gw *gateway.Gateway, codec *Codec, store *persist.Controller, verifier AccountVerifier, emitter Emitter, logger zerolog.Logger) *Facade {
	return &Facade{
		gw:       gw,
		codec:    codec,
		store:    store,
		verifier: verifier,
		emitter:  emitter,
		logger:   logger.With().Str("component", "catalog").Logger(),
		files:    make(map[int64]*CatalogEntry),
		byKey:    make(map[string]int64),
		accounts: make(map[int64]*Account),
	}
}

func (f *Facade) emit(kind, message, actor string, details map[string]string) {
	if f.emitter != nil {
		f.emitter.Emit(kind, message, actor, details)
	}
}

// Load reads the persisted account state, repairs it, and commits it. The
// repaired state is persisted immediately when the guardian changed
// anything. Called once at startup before the server accepts requests.
func (f *Facade) Load(ctx context.Context) error {
	accounts, err := f.codec.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	repaired, changed := f.verifier.Verify(accounts)

	f.mu.Lock()
	f.accounts = make(map[int64]*Account, len(repaired))
	for _, a := range repaired {
		f.accounts[a.ID] = a
		if a.ID >= f.nextAccountID {
			f.nextAccountID = a.ID + 1
		}
	}
	f.mu.Unlock()

	if changed {
		f.emit(audit.KindGuardian, "repaired account state on load", AdminUsername, nil)
		if err := f.persistAccounts(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ListFiles returns the non-deleted entries ordered by identifier. Sorting
// and filtering beyond that is the route layer's concern.
func (f *Facade) ListFiles() []CatalogEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]CatalogEntry, 0, len(f.byKey))
	for _, e := range f.files {
		if !e.Deleted {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetFile returns an active entry by identifier. Soft-deleted entries are
// reported as absent.
func (f *Facade) GetFile(id int64) (CatalogEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	e, ok := f.files[id]
	if !ok || e.Deleted {
		return CatalogEntry{}, fmt.Errorf("%w: file %d", ErrNotFound, id)
	}
	return *e, nil
}

// GetFileByStorageKey returns an active entry by storage key.
func (f *Facade) GetFileByStorageKey(key string) (CatalogEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	id, ok := f.byKey[key]
	if !ok {
		return CatalogEntry{}, fmt.Errorf("%w: storage key %q", ErrNotFound, key)
	}
	return *f.files[id], nil
}

// OpenFile opens an active entry's bytes for streaming.
func (f *Facade) OpenFile(ctx context.Context, id int64) (io.ReadCloser, CatalogEntry, error) {
	entry, err := f.GetFile(id)
	if err != nil {
		return nil, CatalogEntry{}, err
	}
	rc, err := f.gw.Read(ctx, entry.RemotePath)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, CatalogEntry{}, fmt.Errorf("%w: file %d bytes missing remotely", ErrNotFound, id)
		}
		return nil, CatalogEntry{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return rc, entry, nil
}

// CreateFile persists a new upload: writes the bytes through the gateway,
// records the catalog entry and its sidecar metadata, and persists the bulk
// catalog. Storage-key uniqueness is enforced here with a disambiguating
// suffix.
func (f *Facade) CreateFile(ctx context.Context, spec UploadSpec, r io.Reader) (CatalogEntry, error) {
	if spec.Name == "" {
		return CatalogEntry{}, fmt.Errorf("%w: upload name is required", ErrValidation)
	}
	if spec.Size < 0 {
		return CatalogEntry{}, fmt.Errorf("%w: negative size", ErrValidation)
	}
	if r == nil {
		return CatalogEntry{}, fmt.Errorf("%w: upload body is required", ErrValidation)
	}

	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	key := DisambiguateKey(SanitizeKey(spec.Name), f.keyTaken)
	remotePath := f.codec.Layout().FilePath(key)

	if err := f.gw.Write(ctx, remotePath, r); err != nil {
		return CatalogEntry{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	contentType := spec.ContentType
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	uploader := spec.UploadedBy
	if uploader == "" {
		uploader = UnknownUploader
	}

	f.mu.Lock()
	entry := &CatalogEntry{
		ID:          f.nextFileID,
		StorageKey:  key,
		DisplayName: spec.Name,
		Size:        spec.Size,
		ContentType: contentType,
		RemotePath:  remotePath,
		UploadedAt:  time.Now().UTC(),
		UploadedBy:  uploader,
	}
	f.nextFileID++
	f.files[entry.ID] = entry
	f.byKey[key] = entry.ID
	result := *entry
	f.mu.Unlock()

	if err := f.codec.WriteSidecar(ctx, &result); err != nil {
		f.logger.Warn().Err(err).Str("storage_key", key).Msg("Sidecar write failed")
	}
	f.persistCatalogBestEffort(ctx)

	f.emit(audit.KindUpload, fmt.Sprintf("uploaded %s", result.DisplayName), uploader, map[string]string{
		"file_id":     fmt.Sprintf("%d", result.ID),
		"storage_key": key,
	})
	return result, nil
}

// keyTaken reports whether a storage key is held by an active entry.
func (f *Facade) keyTaken(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.byKey[key]
	return ok
}

// RenameFile changes an entry's display name and attempts to move the
// physical object to a matching storage key. A physical failure does not
// fail the rename: the metadata-only rename is committed and the returned
// warning describes the partial result. The original object is never
// deleted before the copy is confirmed.
func (f *Facade) RenameFile(ctx context.Context, id int64, newDisplayName string, actor string) (CatalogEntry, string, error) {
	if newDisplayName == "" {
		return CatalogEntry{}, "", fmt.Errorf("%w: new name is required", ErrValidation)
	}

	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	entry, err := f.GetFile(id)
	if err != nil {
		return CatalogEntry{}, "", err
	}

	oldKey := entry.StorageKey
	newKey := SanitizeKey(newDisplayName)
	if newKey != oldKey {
		newKey = DisambiguateKey(newKey, f.keyTaken)
	}

	warning := ""
	keyChanged := false
	if newKey != oldKey {
		newPath := f.codec.Layout().FilePath(newKey)
		if err := f.gw.Copy(ctx, entry.RemotePath, newPath); err != nil {
			// Copy failed: keep the old object and the old key; the
			// display name still changes below.
			warning = fmt.Sprintf("physical rename failed, display name updated only: %v", err)
			newKey = oldKey
		} else {
			keyChanged = true
			if err := f.gw.Delete(ctx, entry.RemotePath); err != nil {
				// Copy confirmed, old object lingers under the old key
				// until an operator removes it; the next scan lists it
				// as a fresh orphan entry.
				warning = fmt.Sprintf("old object not removed after rename: %v", err)
			}
		}
	}

	f.mu.Lock()
	live := f.files[id]
	live.DisplayName = newDisplayName
	if keyChanged {
		delete(f.byKey, oldKey)
		live.StorageKey = newKey
		live.RemotePath = f.codec.Layout().FilePath(newKey)
		f.byKey[newKey] = id
	}
	result := *live
	f.mu.Unlock()

	if err := f.codec.WriteSidecar(ctx, &result); err != nil {
		f.logger.Warn().Err(err).Str("storage_key", result.StorageKey).Msg("Sidecar write failed")
	}
	if keyChanged {
		if err := f.codec.DeleteSidecar(ctx, oldKey); err != nil {
			f.logger.Warn().Err(err).Str("storage_key", oldKey).Msg("Stale sidecar not removed")
		}
	}
	f.persistCatalogBestEffort(ctx)

	details := map[string]string{
		"file_id":  fmt.Sprintf("%d", id),
		"new_name": newDisplayName,
	}
	if warning != "" {
		details["warning"] = warning
		f.logger.Warn().Int64("file_id", id).Str("warning", warning).Msg("Rename partially succeeded")
	}
	f.emit(audit.KindRename, fmt.Sprintf("renamed file %d to %s", id, newDisplayName), actor, details)
	return result, warning, nil
}

// DeleteFile soft-deletes an entry. The physical object and its sidecar are
// removed best-effort; the catalog mark alone decides success. The entry
// stays in the map for the audit trail and its identifier is never reused.
func (f *Facade) DeleteFile(ctx context.Context, id int64, actor string) error {
	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	entry, err := f.GetFile(id)
	if err != nil {
		return err
	}

	f.softDelete(id)

	if err := f.gw.Delete(ctx, entry.RemotePath); err != nil {
		f.logger.Warn().Err(err).Int64("file_id", id).Msg("Physical delete failed")
	}
	if err := f.codec.DeleteSidecar(ctx, entry.StorageKey); err != nil {
		f.logger.Warn().Err(err).Int64("file_id", id).Msg("Sidecar delete failed")
	}
	f.persistCatalogBestEffort(ctx)

	f.emit(audit.KindDelete, fmt.Sprintf("deleted %s", entry.DisplayName), actor, map[string]string{
		"file_id":     fmt.Sprintf("%d", id),
		"storage_key": entry.StorageKey,
	})
	return nil
}

// PurgeAll soft-deletes every active entry with best-effort physical
// deletes, then persists once. Returns the number of purged entries.
func (f *Facade) PurgeAll(ctx context.Context, actor string) (int, error) {
	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	active := f.ListFiles()
	for _, entry := range active {
		f.softDelete(entry.ID)
		if err := f.gw.Delete(ctx, entry.RemotePath); err != nil {
			f.logger.Warn().Err(err).Int64("file_id", entry.ID).Msg("Physical delete failed during purge")
		}
		if err := f.codec.DeleteSidecar(ctx, entry.StorageKey); err != nil {
			f.logger.Warn().Err(err).Int64("file_id", entry.ID).Msg("Sidecar delete failed during purge")
		}
	}
	f.persistCatalogBestEffort(ctx)

	f.emit(audit.KindPurge, fmt.Sprintf("purged %d files", len(active)), actor, nil)
	return len(active), nil
}

func (f *Facade) softDelete(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.files[id]
	if !ok || e.Deleted {
		return
	}
	now := time.Now().UTC()
	e.Deleted = true
	e.DeletedAt = &now
	delete(f.byKey, e.StorageKey)
}

// ApplyScan commits a reconciliation result: remote objects become entries,
// existing active entries keep their identity, and active entries whose
// object vanished are soft-deleted. Soft-deleted history is retained. The
// new state is swapped in atomically; readers never see a half-merged map.
//
// listedAt is the time the remote listing was taken. Entries uploaded
// after that moment are invisible to the listing and must not be retired
// by it; they are carried over untouched.
func (f *Facade) ApplyScan(scan []ScanEntry, cached map[string]CachedMeta, listedAt time.Time) (added, retired int) {
	f.mutateMu.Lock()
	defer f.mutateMu.Unlock()

	f.mu.RLock()
	nextID := f.nextFileID
	oldFiles := f.files
	oldByKey := f.byKey
	f.mu.RUnlock()

	newFiles := make(map[int64]*CatalogEntry, len(oldFiles))
	for id, e := range oldFiles {
		cp := *e
		newFiles[id] = &cp
	}
	newByKey := make(map[string]int64, len(scan))

	now := time.Now().UTC()
	seen := make(map[string]bool, len(scan))
	for _, s := range scan {
		key := SanitizeKey(s.Name)
		supersededID, dup := newByKey[key]
		if dup {
			// Two remote objects sanitized to the same key. Not expected:
			// write-time disambiguation prevents it. The later listing
			// entry wins and the earlier is superseded.
			f.logger.Warn().Str("storage_key", key).Int64("superseded_id", supersededID).
				Msg("Storage key collision in remote listing")
		}
		seen[key] = true

		if id, ok := oldByKey[key]; ok {
			// Known active entry: retain unchanged, identity preserved.
			newByKey[key] = id
			continue
		}

		entry := &CatalogEntry{
			ID:          nextID,
			StorageKey:  key,
			DisplayName: key,
			Size:        s.Size,
			ContentType: ContentTypeForKey(key),
			RemotePath:  f.codec.Layout().FilePath(s.Name),
			UploadedAt:  s.Modified,
			UploadedBy:  UnknownUploader,
		}
		nextID++
		if entry.UploadedAt.IsZero() {
			entry.UploadedAt = now
		}
		if meta, ok := cached[key]; ok {
			applyCachedMeta(entry, meta)
		}
		newFiles[entry.ID] = entry
		newByKey[key] = entry.ID
		added++

		if dup && supersededID != entry.ID {
			prev := newFiles[supersededID]
			prev.Deleted = true
			prev.DeletedAt = &now
		}
	}

	// Active entries whose object is gone from the listing.
	for key, id := range oldByKey {
		if seen[key] {
			continue
		}
		e := newFiles[id]
		if e.UploadedAt.After(listedAt) {
			// Committed after the listing was taken; the listing cannot
			// have seen it. Carry it over, the next pass settles it.
			newByKey[key] = id
			continue
		}
		e.Deleted = true
		e.DeletedAt = &now
		retired++
	}

	f.mu.Lock()
	f.files = newFiles
	f.byKey = newByKey
	f.nextFileID = nextID
	f.mu.Unlock()

	return added, retired
}

// CachedMetaSnapshot derives the bulk catalog document from the active
// entries.
func (f *Facade) CachedMetaSnapshot() map[string]CachedMeta {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]CachedMeta, len(f.byKey))
	for _, id := range f.byKey {
		e := f.files[id]
		out[e.StorageKey] = CachedMeta{
			OriginalFilename: e.DisplayName,
			UploadedBy:       e.UploadedBy,
			UploadedAt:       e.UploadedAt,
		}
	}
	return out
}

// PersistCatalog durably writes the bulk catalog document.
func (f *Facade) PersistCatalog(ctx context.Context) error {
	snapshot := f.CachedMetaSnapshot()
	payload, err := f.codec.EncodeBulk(snapshot)
	if err != nil {
		return err
	}
	verify := func(data []byte) error {
		parsed, err := f.codec.DecodeBulk(data)
		if err != nil {
			return err
		}
		if len(parsed) != len(snapshot) {
			return fmt.Errorf("entry count mismatch: wrote %d, read %d", len(snapshot), len(parsed))
		}
		return nil
	}
	if err := f.store.Persist(ctx, f.codec.Layout().CatalogPath(), payload, verify); err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return nil
}

// persistCatalogBestEffort persists the catalog for file-mutation paths.
// Losing this write costs only scan-recoverable metadata, so failures are
// logged and the mutation still succeeds.
func (f *Facade) persistCatalogBestEffort(ctx context.Context) {
	if err := f.PersistCatalog(ctx); err != nil {
		f.logger.Error().Err(err).Msg("Catalog persistence failed, in-memory state is ahead of remote")
	}
}

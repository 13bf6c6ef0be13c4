package catalog

// Partial-record merging is explicit: each entity enumerates exactly which
// fields a partial update may touch. Identity fields (id, storage key,
// remote path) are never merged; they change only through the dedicated
// rename path.

// EntryPatch is a partial update to a catalog entry.
type EntryPatch struct {
	DisplayName *string
	ContentType *string
	UploadedBy  *string
}

// ApplyEntryPatch merges a patch into an entry, touching only mutable
// fields. It returns true if anything changed.
func ApplyEntryPatch(e *CatalogEntry, p EntryPatch) bool {
	changed := false
	if p.DisplayName != nil && *p.DisplayName != e.DisplayName {
		e.DisplayName = *p.DisplayName
		changed = true
	}
	if p.ContentType != nil && *p.ContentType != e.ContentType {
		e.ContentType = *p.ContentType
		changed = true
	}
	if p.UploadedBy != nil && *p.UploadedBy != e.UploadedBy {
		e.UploadedBy = *p.UploadedBy
		changed = true
	}
	return changed
}

// AccountPatch is a partial update to an account.
type AccountPatch struct {
	Role   *Role
	Status *Status
}

// ApplyAccountPatch merges a patch into an account. The isApproved flag is
// derived, never set directly, so it cannot drift from the status.
func ApplyAccountPatch(a *Account, p AccountPatch) bool {
	changed := false
	if p.Role != nil && *p.Role != a.Role {
		a.Role = *p.Role
		changed = true
	}
	if p.Status != nil && *p.Status != a.Status {
		a.Status = *p.Status
		changed = true
	}
	if approved := a.Status == StatusApproved; approved != a.IsApproved {
		a.IsApproved = approved
		changed = true
	}
	return changed
}

// applyCachedMeta fills an entry's recoverable fields from cached sidecar
// metadata, without touching identity fields or anything already known.
func applyCachedMeta(e *CatalogEntry, cached CachedMeta) {
	if cached.OriginalFilename != "" {
		e.DisplayName = cached.OriginalFilename
	}
	if cached.UploadedBy != "" {
		e.UploadedBy = cached.UploadedBy
	}
	if !cached.UploadedAt.IsZero() {
		e.UploadedAt = cached.UploadedAt
	}
}

package catalog

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Reserved document names inside the base folder. A remote listing of the
// file folder must never treat these as user files.
const (
	FilesFolder    = "cdns"
	MetadataFolder = "metadata"
	LogsFolder     = "logs"
	CatalogDoc     = "catalog.json"
	AccountsDoc    = "accounts.json"
)

// Layout computes the remote paths of every persisted document relative to
// a base folder. Names are fixed for compatibility with deployed state.
type Layout struct {
	Base string
}

// NewLayout creates a layout rooted at base (may be empty for the store root).
func NewLayout(base string) Layout {
	return Layout{Base: strings.Trim(base, "/")}
}

func (l Layout) join(parts ...string) string {
	if l.Base == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{l.Base}, parts...)...)
}

// FilesDir returns the folder holding physical file bytes.
func (l Layout) FilesDir() string { return l.join(FilesFolder) }

// FilePath returns the physical path for a storage key.
func (l Layout) FilePath(storageKey string) string { return l.join(FilesFolder, storageKey) }

// MetadataDir returns the sidecar folder.
func (l Layout) MetadataDir() string { return l.join(MetadataFolder) }

// SidecarPath returns the sidecar document path for a storage key.
func (l Layout) SidecarPath(storageKey string) string {
	return l.join(MetadataFolder, storageKey+".json")
}

// CatalogPath returns the bulk catalog document path.
func (l Layout) CatalogPath() string { return l.join(CatalogDoc) }

// AccountsPath returns the accounts document path.
func (l Layout) AccountsPath() string { return l.join(AccountsDoc) }

// LogsBackupPath returns a timestamped audit-log backup path.
func (l Layout) LogsBackupPath(ts time.Time) string {
	return l.join(LogsFolder, fmt.Sprintf("logs_backup_%d.json", ts.Unix()))
}

// LogsDir returns the audit-log backup folder.
func (l Layout) LogsDir() string { return l.join(LogsFolder) }

// IsReservedName reports whether a basename inside the file folder is a
// metadata document rather than a user file.
func IsReservedName(name string) bool {
	if name == CatalogDoc || name == AccountsDoc {
		return true
	}
	return strings.HasSuffix(name, ".json") && strings.Contains(name, ".backup")
}

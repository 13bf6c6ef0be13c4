// Package catalog implements the durable file/user catalog: the in-memory
// maps that mirror the remote store, the JSON document codec, and the
// Facade that exposes CRUD to the route layer.
package catalog

import (
	"time"
)

// AdminUsername is the reserved login of the primordial administrator. The
// account always exists, always has RoleAdmin and StatusApproved, and can
// neither be deleted nor demoted.
const AdminUsername = "admin"

// UnknownUploader is the sentinel recorded when a file's uploader cannot be
// recovered, e.g. for objects discovered by a remote scan.
const UnknownUploader = "unknown"

// Role is an account role.
type Role string

// Account roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Status is an account approval status.
type Status string

// Account approval states.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CatalogEntry is one file record. Identifiers are assigned locally,
// increase monotonically and are never reused within a process lifetime.
type CatalogEntry struct {
	ID          int64      `json:"id"`
	StorageKey  string     `json:"storage_key"`  // physical name under cdns/
	DisplayName string     `json:"display_name"` // user-facing, independently renameable
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
	RemotePath  string     `json:"remote_path"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	UploadedBy  string     `json:"uploaded_by"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Account is one user record. The JSON shape matches the deployed
// accounts.json document and must not change.
type Account struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Password   string `json:"password"` // opaque hash, never a raw secret
	Role       Role   `json:"role"`
	Status     Status `json:"status"`
	IsApproved bool   `json:"isApproved"`
}

// IsPrimordialAdmin reports whether this is the reserved administrator.
func (a *Account) IsPrimordialAdmin() bool {
	return a.Username == AdminUsername
}

// CachedMeta is the per-key record persisted in the bulk catalog.json
// document: the information a remote listing cannot recover.
type CachedMeta struct {
	OriginalFilename string    `json:"originalFilename"`
	UploadedBy       string    `json:"uploadedBy"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// Sidecar is the per-file metadata document stored under metadata/. The
// human-formatted size and date exist for auditability of the raw store.
type Sidecar struct {
	Filename       string `json:"filename"`
	Size           string `json:"size"`        // human string, e.g. "1.50 MB"
	UploadedOn     string `json:"uploaded_on"` // formatted date
	UploadedBy     string `json:"uploaded_by"`
	MimeType       string `json:"mime_type"`
	SystemFilename string `json:"system_filename"`
	FileID         int64  `json:"file_id"`
}

// SidecarTimeFormat is the human-readable timestamp format used in sidecar
// documents.
const SidecarTimeFormat = "2006-01-02 15:04:05 MST"

// UploadSpec describes a new upload handed over by the route layer.
type UploadSpec struct {
	Name        string
	Size        int64
	ContentType string
	UploadedBy  string
}

// ScanEntry is one remote object discovered by a reconciliation listing.
type ScanEntry struct {
	Name     string
	Size     int64
	Modified time.Time
}

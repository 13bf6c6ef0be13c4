package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shareport/shareport/internal/gateway"
	"github.com/shareport/shareport/pkg/bytesize"
)

// Codec converts between catalog records and the JSON documents persisted
// remotely: the bulk catalog.json keyed by storage key, one sidecar document
// per file, and the accounts list.
//
// Decoding is tolerant. An absent document yields an empty
// structure; malformed JSON yields an empty structure plus a logged parse
// failure. Only transport failures propagate to the caller.
type Codec struct {
	gw     *gateway.Gateway
	layout Layout
	logger zerolog.Logger
}

// NewCodec creates a codec bound to a gateway and document layout.
func NewCodec(gw *gateway.Gateway, layout Layout, logger zerolog.Logger) *Codec {
	return &Codec{
		gw:     gw,
		layout: layout,
		logger: logger.With().Str("component", "codec").Logger(),
	}
}

// Layout returns the document layout the codec reads and writes.
func (c *Codec) Layout() Layout { return c.layout }

// LoadBulk reads the bulk catalog document.
func (c *Codec) LoadBulk(ctx context.Context) (map[string]CachedMeta, error) {
	out := make(map[string]CachedMeta)
	data, err := c.gw.ReadAll(ctx, c.layout.CatalogPath())
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return out, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Warn().Err(err).Str("path", c.layout.CatalogPath()).
			Msg("Malformed catalog document, treating as empty")
		return make(map[string]CachedMeta), nil
	}
	return out, nil
}

// EncodeBulk serializes the bulk catalog document.
func (c *Codec) EncodeBulk(meta map[string]CachedMeta) ([]byte, error) {
	return json.MarshalIndent(meta, "", "  ")
}

// DecodeBulk parses a bulk catalog document strictly; used by persistence
// verification read-backs where a parse failure is the signal.
func (c *Codec) DecodeBulk(data []byte) (map[string]CachedMeta, error) {
	out := make(map[string]CachedMeta)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadSidecar reads one sidecar document. Absent or malformed documents
// yield ok=false.
func (c *Codec) LoadSidecar(ctx context.Context, storageKey string) (Sidecar, bool) {
	var sc Sidecar
	data, err := c.gw.ReadAll(ctx, c.layout.SidecarPath(storageKey))
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			c.logger.Warn().Err(err).Str("storage_key", storageKey).Msg("Sidecar read failed")
		}
		return sc, false
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		c.logger.Warn().Err(err).Str("storage_key", storageKey).
			Msg("Malformed sidecar document, ignoring")
		return Sidecar{}, false
	}
	return sc, true
}

// SidecarFor builds the sidecar document for an entry.
func (c *Codec) SidecarFor(e *CatalogEntry) Sidecar {
	return Sidecar{
		Filename:       e.DisplayName,
		Size:           bytesize.Format(e.Size),
		UploadedOn:     e.UploadedAt.UTC().Format(SidecarTimeFormat),
		UploadedBy:     e.UploadedBy,
		MimeType:       e.ContentType,
		SystemFilename: e.StorageKey,
		FileID:         e.ID,
	}
}

// WriteSidecar persists the sidecar document for an entry.
func (c *Codec) WriteSidecar(ctx context.Context, e *CatalogEntry) error {
	data, err := json.MarshalIndent(c.SidecarFor(e), "", "  ")
	if err != nil {
		return err
	}
	return c.gw.Write(ctx, c.layout.SidecarPath(e.StorageKey), strings.NewReader(string(data)))
}

// DeleteSidecar removes the sidecar document for a storage key.
func (c *Codec) DeleteSidecar(ctx context.Context, storageKey string) error {
	return c.gw.Delete(ctx, c.layout.SidecarPath(storageKey))
}

// LoadCachedMeta merges both cached metadata sources per storage key:
// sidecar documents are authoritative when present, falling back to the
// bulk catalog document. Listing the sidecar folder failing is not fatal;
// the bulk document alone is still usable.
func (c *Codec) LoadCachedMeta(ctx context.Context) (map[string]CachedMeta, error) {
	merged, err := c.LoadBulk(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := c.gw.List(ctx, c.layout.MetadataDir())
	if err != nil {
		c.logger.Warn().Err(err).Msg("Sidecar folder listing failed, using bulk document only")
		return merged, nil
	}

	for _, entry := range entries {
		if entry.Dir || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		key := strings.TrimSuffix(entry.Name, ".json")
		sc, ok := c.LoadSidecar(ctx, key)
		if !ok {
			continue
		}
		cached := merged[key]
		if sc.Filename != "" {
			cached.OriginalFilename = sc.Filename
		}
		if sc.UploadedBy != "" {
			cached.UploadedBy = sc.UploadedBy
		}
		if t, err := time.Parse(SidecarTimeFormat, sc.UploadedOn); err == nil {
			cached.UploadedAt = t
		}
		merged[key] = cached
	}
	return merged, nil
}

// LoadAccounts reads the accounts document. Absent or malformed documents
// yield an empty list; the Guardian rebuilds the administrator afterwards.
func (c *Codec) LoadAccounts(ctx context.Context) ([]*Account, error) {
	data, err := c.gw.ReadAll(ctx, c.layout.AccountsPath())
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var accounts []*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		c.logger.Warn().Err(err).Str("path", c.layout.AccountsPath()).
			Msg("Malformed accounts document, treating as empty")
		return nil, nil
	}
	return accounts, nil
}

// EncodeAccounts serializes the accounts document.
func (c *Codec) EncodeAccounts(accounts []*Account) ([]byte, error) {
	if accounts == nil {
		accounts = []*Account{}
	}
	return json.MarshalIndent(accounts, "", "  ")
}

// DecodeAccounts parses an accounts document strictly.
func (c *Codec) DecodeAccounts(data []byte) ([]*Account, error) {
	var accounts []*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareport/shareport/internal/gateway"
)

func newTestCodec(t *testing.T) (*Codec, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(gateway.NewBillyClient(memfs.New()), time.Second, zerolog.Nop())
	return NewCodec(gw, NewLayout(""), zerolog.Nop()), gw
}

func TestLoadBulkAbsent(t *testing.T) {
	c, _ := newTestCodec(t)

	meta, err := c.LoadBulk(context.Background())
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestLoadBulkMalformed(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	require.NoError(t, gw.Write(ctx, "catalog.json", strings.NewReader("{not json")))

	meta, err := c.LoadBulk(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestBulkRoundTrip(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	uploaded := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	in := map[string]CachedMeta{
		"a.txt": {OriginalFilename: "A.txt", UploadedBy: "alice", UploadedAt: uploaded},
	}
	data, err := c.EncodeBulk(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"originalFilename": "A.txt"`)
	assert.Contains(t, string(data), `"uploadedBy": "alice"`)

	require.NoError(t, gw.Write(ctx, "catalog.json", strings.NewReader(string(data))))
	out, err := c.LoadBulk(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeBulkStrict(t *testing.T) {
	c, _ := newTestCodec(t)

	_, err := c.DecodeBulk([]byte("{broken"))
	assert.Error(t, err)
}

func TestSidecarFor(t *testing.T) {
	c, _ := newTestCodec(t)

	entry := &CatalogEntry{
		ID:          9,
		StorageKey:  "report.pdf",
		DisplayName: "Quarterly Report.pdf",
		Size:        1572864,
		ContentType: "application/pdf",
		UploadedAt:  time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
		UploadedBy:  "carol",
	}
	sc := c.SidecarFor(entry)
	assert.Equal(t, "Quarterly Report.pdf", sc.Filename)
	assert.Equal(t, "1.50 MB", sc.Size)
	assert.Equal(t, "2026-01-15 09:30:00 UTC", sc.UploadedOn)
	assert.Equal(t, "carol", sc.UploadedBy)
	assert.Equal(t, "application/pdf", sc.MimeType)
	assert.Equal(t, "report.pdf", sc.SystemFilename)
	assert.Equal(t, int64(9), sc.FileID)
}

func TestSidecarWriteRead(t *testing.T) {
	c, _ := newTestCodec(t)
	ctx := context.Background()

	entry := &CatalogEntry{ID: 1, StorageKey: "a.txt", DisplayName: "a.txt", Size: 3, UploadedBy: "bob",
		UploadedAt: time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)}
	require.NoError(t, c.WriteSidecar(ctx, entry))

	sc, ok := c.LoadSidecar(ctx, "a.txt")
	require.True(t, ok)
	assert.Equal(t, "a.txt", sc.Filename)
	assert.Equal(t, "bob", sc.UploadedBy)
}

func TestLoadSidecarAbsentAndMalformed(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	_, ok := c.LoadSidecar(ctx, "missing.txt")
	assert.False(t, ok)

	require.NoError(t, gw.Write(ctx, "metadata/bad.txt.json", strings.NewReader("nope")))
	_, ok = c.LoadSidecar(ctx, "bad.txt")
	assert.False(t, ok)
}

func TestDeleteSidecar(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	entry := &CatalogEntry{ID: 1, StorageKey: "a.txt", DisplayName: "a.txt"}
	require.NoError(t, c.WriteSidecar(ctx, entry))
	require.NoError(t, c.DeleteSidecar(ctx, "a.txt"))

	ok, err := gw.Exists(ctx, "metadata/a.txt.json")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent sidecar is a no-op.
	require.NoError(t, c.DeleteSidecar(ctx, "a.txt"))
}

func TestLoadCachedMetaSidecarWins(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	bulk := `{
  "a.txt": {"originalFilename": "stale name.txt", "uploadedBy": "stale", "uploadedAt": "2024-01-01T00:00:00Z"},
  "b.txt": {"originalFilename": "only-in-bulk.txt", "uploadedBy": "bob", "uploadedAt": "2024-02-02T00:00:00Z"}
}`
	require.NoError(t, gw.Write(ctx, "catalog.json", strings.NewReader(bulk)))

	entry := &CatalogEntry{ID: 3, StorageKey: "a.txt", DisplayName: "fresh name.txt", UploadedBy: "alice",
		UploadedAt: time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)}
	require.NoError(t, c.WriteSidecar(ctx, entry))

	merged, err := c.LoadCachedMeta(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	// The sidecar overrides the bulk record for its key.
	assert.Equal(t, "fresh name.txt", merged["a.txt"].OriginalFilename)
	assert.Equal(t, "alice", merged["a.txt"].UploadedBy)
	assert.Equal(t, 2026, merged["a.txt"].UploadedAt.Year())

	// Keys present only in the bulk document survive the merge.
	assert.Equal(t, "only-in-bulk.txt", merged["b.txt"].OriginalFilename)
}

func TestLoadCachedMetaNoSidecarFolder(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	bulk := `{"a.txt": {"originalFilename": "A.txt", "uploadedBy": "alice", "uploadedAt": "2026-01-01T00:00:00Z"}}`
	require.NoError(t, gw.Write(ctx, "catalog.json", strings.NewReader(bulk)))

	merged, err := c.LoadCachedMeta(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "A.txt", merged["a.txt"].OriginalFilename)
}

func TestLoadAccountsAbsentAndMalformed(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	accounts, err := c.LoadAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, gw.Write(ctx, "accounts.json", strings.NewReader("[broken")))
	accounts, err = c.LoadAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestAccountsRoundTripWireShape(t *testing.T) {
	c, gw := newTestCodec(t)
	ctx := context.Background()

	in := []*Account{
		{ID: 1, Username: "admin", Password: "$2a$10$hash", Role: RoleAdmin, Status: StatusApproved, IsApproved: true},
		{ID: 2, Username: "dave", Password: "$2a$10$other", Role: RoleUser, Status: StatusPending},
	}
	data, err := c.EncodeAccounts(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"isApproved": true`)
	assert.Contains(t, string(data), `"username": "admin"`)

	require.NoError(t, gw.Write(ctx, "accounts.json", strings.NewReader(string(data))))
	out, err := c.LoadAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeAccountsNilIsEmptyList(t *testing.T) {
	c, _ := newTestCodec(t)

	data, err := c.EncodeAccounts(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

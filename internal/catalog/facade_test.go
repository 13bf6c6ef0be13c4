package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareport/shareport/internal/gateway"
	"github.com/shareport/shareport/internal/persist"
)

// passVerifier accepts any account list unchanged.
type passVerifier struct{}

func (passVerifier) Verify(accounts []*Account) ([]*Account, bool) { return accounts, false }

// captureEmitter records emitted audit events.
type captureEmitter struct {
	kinds []string
}

func (c *captureEmitter) Emit(kind, _, _ string, _ map[string]string) {
	c.kinds = append(c.kinds, kind)
}

func newTestFacade(t *testing.T) (*Facade, *gateway.Gateway) {
	t.Helper()
	return newTestFacadeWithClient(t, gateway.NewBillyClient(memfs.New()))
}

func newTestFacadeWithClient(t *testing.T, client gateway.Client) (*Facade, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(client, time.Second, zerolog.Nop())
	codec := NewCodec(gw, NewLayout(""), zerolog.Nop())
	store := persist.New(gw, persist.Options{
		BaseDelay:   time.Millisecond,
		VerifyDelay: time.Millisecond,
		MaxAttempts: 2,
	}, zerolog.Nop())
	f := NewFacade(gw, codec, store, passVerifier{}, nil, zerolog.Nop())
	return f, gw
}

func TestCreateFileThenList(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{
		Name:        "a.txt",
		Size:        12,
		ContentType: "text/plain",
		UploadedBy:  "alice",
	}, strings.NewReader("hello world!"))
	require.NoError(t, err)

	files := f.ListFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].DisplayName)
	assert.Equal(t, int64(12), files[0].Size)
	assert.False(t, files[0].Deleted)
	assert.Equal(t, entry.ID, files[0].ID)
	assert.Equal(t, "alice", files[0].UploadedBy)
}

func TestCreateFileWritesBytesAndSidecar(t *testing.T) {
	f, gw := newTestFacade(t)
	ctx := context.Background()

	_, err := f.CreateFile(ctx, UploadSpec{Name: "report.pdf", Size: 4, UploadedBy: "bob"},
		strings.NewReader("%PDF"))
	require.NoError(t, err)

	data, err := gw.ReadAll(ctx, "cdns/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	sidecar, err := gw.ReadAll(ctx, "metadata/report.pdf.json")
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), `"uploaded_by": "bob"`)
	assert.Contains(t, string(sidecar), `"mime_type": "application/pdf"`)

	bulk, err := gw.ReadAll(ctx, "catalog.json")
	require.NoError(t, err)
	assert.Contains(t, string(bulk), `"report.pdf"`)
}

func TestCreateFileValidation(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	_, err := f.CreateFile(ctx, UploadSpec{Name: "", Size: 1}, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: -1}, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 1}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateFileDisambiguatesCollidingKeys(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	first, err := f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 1}, strings.NewReader("1"))
	require.NoError(t, err)
	second, err := f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 1}, strings.NewReader("2"))
	require.NoError(t, err)

	assert.Equal(t, "a.txt", first.StorageKey)
	assert.Equal(t, "a-1.txt", second.StorageKey)
	assert.Equal(t, "a.txt", second.DisplayName)
}

func TestGetFileByStorageKey(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	created, err := f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	got, err := f.GetFileByStorageKey("a.txt")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.GetFileByStorageKey("nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFileIsSoftAndTerminal(t *testing.T) {
	f, gw := newTestFacade(t)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "gone.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, f.DeleteFile(ctx, entry.ID, "alice"))

	_, err = f.GetFile(entry.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.ListFiles())

	// Physical object and sidecar removed.
	ok, err := gw.Exists(ctx, "cdns/gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = gw.Exists(ctx, "metadata/gone.txt.json")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again reports NotFound; there is no transition out of
	// soft-deleted.
	err = f.DeleteFile(ctx, entry.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFileSucceedsWhenPhysicalDeleteFails(t *testing.T) {
	client := &brokenCopyDeleteClient{Client: gateway.NewBillyClient(memfs.New())}
	f, _ := newTestFacadeWithClient(t, client)
	ctx := context.Background()

	client.broken = false
	entry, err := f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	client.broken = true
	require.NoError(t, f.DeleteFile(ctx, entry.ID, "alice"))
	assert.Empty(t, f.ListFiles())
}

// brokenCopyDeleteClient fails Copy and Delete when broken is set.
type brokenCopyDeleteClient struct {
	gateway.Client
	broken bool
}

func (b *brokenCopyDeleteClient) Copy(ctx context.Context, src, dst string) error {
	if b.broken {
		return errors.New("simulated copy failure")
	}
	return b.Client.Copy(ctx, src, dst)
}

func (b *brokenCopyDeleteClient) Delete(ctx context.Context, path string) error {
	if b.broken {
		return errors.New("simulated delete failure")
	}
	return b.Client.Delete(ctx, path)
}

func TestRenameFile(t *testing.T) {
	f, gw := newTestFacade(t)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "old.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	renamed, warning, err := f.RenameFile(ctx, entry.ID, "new.txt", "alice")
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, "new.txt", renamed.DisplayName)
	assert.Equal(t, "new.txt", renamed.StorageKey)

	// Physical object moved.
	ok, err := gw.Exists(ctx, "cdns/old.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	data, err := gw.ReadAll(ctx, "cdns/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestRenameFileCommitsMetadataWhenPhysicalFails(t *testing.T) {
	client := &brokenCopyDeleteClient{Client: gateway.NewBillyClient(memfs.New())}
	f, gw := newTestFacadeWithClient(t, client)
	ctx := context.Background()

	client.broken = false
	entry, err := f.CreateFile(ctx, UploadSpec{Name: "old.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	client.broken = true
	renamed, warning, err := f.RenameFile(ctx, entry.ID, "newname.txt", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	assert.Equal(t, "newname.txt", renamed.DisplayName)
	// The physical key is unchanged; the bytes never moved.
	assert.Equal(t, "old.txt", renamed.StorageKey)

	client.broken = false
	data, err := gw.ReadAll(ctx, "cdns/old.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestRenameFileKeepsOriginalWhenDeleteFails(t *testing.T) {
	client := &brokenDeleteClient{Client: gateway.NewBillyClient(memfs.New())}
	f, gw := newTestFacadeWithClient(t, client)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "old.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	client.broken = true
	renamed, warning, err := f.RenameFile(ctx, entry.ID, "new.txt", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	// Copy confirmed, so the entry points at the new key.
	assert.Equal(t, "new.txt", renamed.StorageKey)

	// The stale original lingers until cleaned up, which is the safe side.
	ok, err := gw.Exists(ctx, "cdns/old.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

// brokenDeleteClient fails only Delete when broken is set.
type brokenDeleteClient struct {
	gateway.Client
	broken bool
}

func (b *brokenDeleteClient) Delete(ctx context.Context, path string) error {
	if b.broken {
		return errors.New("simulated delete failure")
	}
	return b.Client.Delete(ctx, path)
}

func TestRenameFileNotFound(t *testing.T) {
	f, _ := newTestFacade(t)

	_, _, err := f.RenameFile(context.Background(), 42, "x.txt", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeAll(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := f.CreateFile(ctx, UploadSpec{Name: name, Size: 1}, strings.NewReader("x"))
		require.NoError(t, err)
	}

	n, err := f.PurgeAll(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, f.ListFiles())
}

func TestApplyScanDiscoversOrphan(t *testing.T) {
	f, _ := newTestFacade(t)

	added, retired := f.ApplyScan([]ScanEntry{
		{Name: "orphan.png", Size: 99, Modified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}, nil, time.Now().UTC())
	assert.Equal(t, 1, added)
	assert.Equal(t, 0, retired)

	files := f.ListFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "orphan.png", files[0].StorageKey)
	assert.Equal(t, "image/png", files[0].ContentType)
	assert.Equal(t, UnknownUploader, files[0].UploadedBy)
	assert.Equal(t, int64(99), files[0].Size)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), files[0].UploadedAt)
}

func TestApplyScanAppliesCachedMetadata(t *testing.T) {
	f, _ := newTestFacade(t)

	uploaded := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	added, _ := f.ApplyScan(
		[]ScanEntry{{Name: "doc.pdf", Size: 10, Modified: time.Now()}},
		map[string]CachedMeta{"doc.pdf": {
			OriginalFilename: "Quarterly Report.pdf",
			UploadedBy:       "carol",
			UploadedAt:       uploaded,
		}},
		time.Now().UTC(),
	)
	assert.Equal(t, 1, added)

	files := f.ListFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "Quarterly Report.pdf", files[0].DisplayName)
	assert.Equal(t, "carol", files[0].UploadedBy)
	assert.Equal(t, uploaded, files[0].UploadedAt)
}

func TestApplyScanRetiresVanishedEntries(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "gone.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	added, retired := f.ApplyScan(nil, nil, time.Now().UTC())
	assert.Equal(t, 0, added)
	assert.Equal(t, 1, retired)

	_, err = f.GetFile(entry.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyScanIsIdempotent(t *testing.T) {
	f, _ := newTestFacade(t)

	scan := []ScanEntry{
		{Name: "a.txt", Size: 1, Modified: time.Now()},
		{Name: "b.png", Size: 2, Modified: time.Now()},
	}
	added, retired := f.ApplyScan(scan, nil, time.Now().UTC())
	require.Equal(t, 2, added)
	require.Equal(t, 0, retired)
	first := f.ListFiles()

	added, retired = f.ApplyScan(scan, nil, time.Now().UTC())
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, retired)
	assert.Equal(t, first, f.ListFiles())
}

func TestApplyScanPreservesExistingIdentity(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "keep.txt", Size: 1, UploadedBy: "alice"},
		strings.NewReader("x"))
	require.NoError(t, err)

	f.ApplyScan([]ScanEntry{{Name: "keep.txt", Size: 1, Modified: time.Now()}}, nil, time.Now().UTC())

	got, err := f.GetFile(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UploadedBy)
	assert.Equal(t, entry.ID, got.ID)
}

func TestApplyScanNeverReusesIdentifiers(t *testing.T) {
	f, _ := newTestFacade(t)

	f.ApplyScan([]ScanEntry{{Name: "gone.txt", Size: 1, Modified: time.Now()}}, nil, time.Now().UTC())
	files := f.ListFiles()
	require.Len(t, files, 1)
	goneID := files[0].ID

	// Object vanishes, then a different object appears.
	f.ApplyScan(nil, nil, time.Now().UTC())
	f.ApplyScan([]ScanEntry{{Name: "other.txt", Size: 1, Modified: time.Now()}}, nil, time.Now().UTC())

	files = f.ListFiles()
	require.Len(t, files, 1)
	assert.NotEqual(t, goneID, files[0].ID)
	assert.Greater(t, files[0].ID, goneID)
}

func TestApplyScanSoftDeleteIsMonotonic(t *testing.T) {
	f, _ := newTestFacade(t)

	f.ApplyScan([]ScanEntry{{Name: "a.txt", Size: 1, Modified: time.Now()}}, nil, time.Now().UTC())
	f.ApplyScan(nil, nil, time.Now().UTC())

	// The object never comes back; repeated scans must not resurrect it.
	for i := 0; i < 3; i++ {
		added, retired := f.ApplyScan(nil, nil, time.Now().UTC())
		assert.Equal(t, 0, added)
		assert.Equal(t, 0, retired)
		assert.Empty(t, f.ListFiles())
	}
}

func TestApplyScanKeepsUploadNewerThanListing(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	listedAt := time.Now().UTC().Add(-time.Minute)
	entry, err := f.CreateFile(ctx, UploadSpec{Name: "fresh.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)

	// The listing predates the upload, so the upload is absent from it.
	added, retired := f.ApplyScan(nil, nil, listedAt)
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, retired)

	got, err := f.GetFile(entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Deleted)

	byKey, err := f.GetFileByStorageKey(entry.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byKey.ID)

	// A scan taken after the upload retains the same identity.
	f.ApplyScan([]ScanEntry{{Name: "fresh.txt", Size: 1, Modified: time.Now()}}, nil, time.Now().UTC())
	got, err = f.GetFile(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestApplyScanSupersedesCollidingEntry(t *testing.T) {
	f, _ := newTestFacade(t)

	// Both names sanitize to "a_b.txt"; the later listing entry wins.
	added, retired := f.ApplyScan([]ScanEntry{
		{Name: "a b.txt", Size: 1, Modified: time.Now()},
		{Name: "a?b.txt", Size: 2, Modified: time.Now()},
	}, nil, time.Now().UTC())
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, retired)

	files := f.ListFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "a_b.txt", files[0].StorageKey)
	assert.Equal(t, int64(2), files[0].Size)

	winner, err := f.GetFileByStorageKey("a_b.txt")
	require.NoError(t, err)
	assert.Equal(t, files[0].ID, winner.ID)

	// The superseded entry is soft-deleted history, not a live duplicate.
	_, err = f.GetFile(winner.ID - 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenFileStreamsBytes(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 5}, strings.NewReader("bytes"))
	require.NoError(t, err)

	rc, got, err := f.OpenFile(ctx, entry.ID)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	assert.Equal(t, entry.ID, got.ID)

	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "bytes", string(buf[:n]))
}

func TestFacadeEmitsAuditEvents(t *testing.T) {
	gw := gateway.New(gateway.NewBillyClient(memfs.New()), time.Second, zerolog.Nop())
	codec := NewCodec(gw, NewLayout(""), zerolog.Nop())
	store := persist.New(gw, persist.Options{BaseDelay: time.Millisecond, VerifyDelay: time.Millisecond}, zerolog.Nop())
	emitter := &captureEmitter{}
	f := NewFacade(gw, codec, store, passVerifier{}, emitter, zerolog.Nop())
	ctx := context.Background()

	entry, err := f.CreateFile(ctx, UploadSpec{Name: "a.txt", Size: 1}, strings.NewReader("x"))
	require.NoError(t, err)
	_, _, err = f.RenameFile(ctx, entry.ID, "b.txt", "alice")
	require.NoError(t, err)
	require.NoError(t, f.DeleteFile(ctx, entry.ID, "alice"))

	assert.Equal(t, []string{"file_upload", "file_rename", "file_delete"}, emitter.kinds)
}

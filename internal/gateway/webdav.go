package gateway

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/studio-b12/gowebdav"
)

// WebDAVClient implements Client against a WebDAV endpoint (NextCloud).
// gowebdav carries its own HTTP timeout; the per-call context is checked
// before each request so a cancelled caller fails fast.
type WebDAVClient struct {
	dav *gowebdav.Client
}

// NewWebDAVClient connects to a WebDAV endpoint with basic auth.
func NewWebDAVClient(url, username, password string, timeout time.Duration) *WebDAVClient {
	dav := gowebdav.NewClient(url, username, password)
	if timeout > 0 {
		dav.SetTimeout(timeout)
	}
	return &WebDAVClient{dav: dav}
}

func translate(err error, p string) error {
	if err == nil {
		return nil
	}
	if gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return err
}

func (c *WebDAVClient) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := c.dav.Stat(p)
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *WebDAVClient) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := c.dav.ReadStream(p)
	if err != nil {
		return nil, translate(err, p)
	}
	return rc, nil
}

func (c *WebDAVClient) Write(ctx context.Context, p string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." && dir != "/" {
		// MkdirAll is a no-op for existing collections.
		if err := c.dav.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return c.dav.WriteStream(p, r, 0o644)
}

func (c *WebDAVClient) List(ctx context.Context, folder string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := c.dav.ReadDir(folder)
	if err != nil {
		return nil, translate(err, folder)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:     info.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
			Dir:      info.IsDir(),
		})
	}
	return entries, nil
}

func (c *WebDAVClient) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(c.dav.Remove(p), p)
}

func (c *WebDAVClient) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(c.dav.Copy(src, dst, true), src)
}

func (c *WebDAVClient) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(c.dav.Rename(src, dst, true), src)
}

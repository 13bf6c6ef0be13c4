package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
)

// BillyClient implements Client on top of a billy.Filesystem. Production
// local-disk mode uses osfs rooted at the base folder; tests use memfs.
type BillyClient struct {
	fs billy.Filesystem
}

// NewBillyClient creates a Client backed by the given filesystem.
func NewBillyClient(fs billy.Filesystem) *BillyClient {
	return &BillyClient{fs: fs}
}

func (c *BillyClient) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := c.fs.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *BillyClient) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	return f, nil
}

func (c *BillyClient) Write(ctx context.Context, p string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." && dir != "/" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := c.fs.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *BillyClient) List(ctx context.Context, folder string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := c.fs.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, folder)
		}
		return nil, err
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

func (c *BillyClient) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.fs.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return err
	}
	return nil
}

func (c *BillyClient) Copy(ctx context.Context, src, dst string) error {
	rc, err := c.Read(ctx, src)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return c.Write(ctx, dst, rc)
}

func (c *BillyClient) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := path.Dir(dst); dir != "." && dir != "/" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := c.fs.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return err
	}
	return nil
}

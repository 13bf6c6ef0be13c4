// Package gateway wraps the remote object store behind a small capability
// interface. The rest of the system never reaches past it: catalog, codec
// and persistence all talk to the store through Gateway, which adds bounded
// timeouts, error translation and call metrics on top of a Client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Gateway error types.
var (
	ErrNotFound    = errors.New("remote object not found")
	ErrUnavailable = errors.New("remote store unavailable")
)

// RemoteError wraps a transport-level failure with the operation and path
// that produced it. It unwraps to ErrNotFound or ErrUnavailable so callers
// can match with errors.Is.
type RemoteError struct {
	Op   string
	Path string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Entry describes one item in a remote directory listing.
type Entry struct {
	Name     string
	Size     int64
	Modified time.Time
	Dir      bool
}

// Client is the opaque remote store transport. Implementations exist for
// local disk (billy) and WebDAV (NextCloud). No operation is assumed atomic;
// in particular a Copy followed by a Delete can fail between the two calls
// and callers must tolerate both objects existing.
type Client interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, r io.Reader) error
	List(ctx context.Context, folder string) ([]Entry, error)
	Delete(ctx context.Context, path string) error
	Copy(ctx context.Context, src, dst string) error
	Move(ctx context.Context, src, dst string) error
}

// DefaultTimeout bounds every remote call when the config does not say
// otherwise. The remote store is untrusted and can hang.
const DefaultTimeout = 30 * time.Second

// Gateway adds per-call timeouts, error classification and metrics to a
// Client. It is safe for concurrent use if the underlying Client is.
type Gateway struct {
	client  Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a Gateway around the given client. A non-positive timeout
// falls back to DefaultTimeout.
func New(client Client, timeout time.Duration, logger zerolog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		client:  client,
		timeout: timeout,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

func (g *Gateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// observe records call metrics and classifies the error.
func (g *Gateway) observe(op, path string, start time.Time, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, ErrNotFound) {
			status = "not_found"
		}
	}
	callsTotal.WithLabelValues(op, status).Inc()
	callDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return &RemoteError{Op: op, Path: path, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	} else if !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	g.logger.Warn().Str("op", op).Str("path", path).Err(err).Msg("Remote call failed")
	return &RemoteError{Op: op, Path: path, Err: err}
}

// Exists reports whether an object exists at path.
func (g *Gateway) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	start := time.Now()
	ok, err := g.client.Exists(ctx, path)
	return ok, g.observe("exists", path, start, err)
}

// Read opens an object for streaming. The caller owns the returned reader.
// Fails with ErrNotFound if the object is absent.
func (g *Gateway) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	// The stream outlives the call, so the timeout only bounds the open.
	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(g.timeout, cancel)
	start := time.Now()
	rc, err := g.client.Read(ctx, path)
	timer.Stop()
	if err != nil {
		cancel()
		return nil, g.observe("read", path, start, err)
	}
	_ = g.observe("read", path, start, nil)
	return &cancelReadCloser{ReadCloser: rc, cancel: cancel}, nil
}

// ReadAll reads an entire object into memory.
func (g *Gateway) ReadAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := g.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &RemoteError{Op: "read", Path: path, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return data, nil
}

// Write stores an object at path, overwriting any existing one.
func (g *Gateway) Write(ctx context.Context, path string, r io.Reader) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	start := time.Now()
	err := g.client.Write(ctx, path, r)
	return g.observe("write", path, start, err)
}

// List returns the entries of a remote folder. Fails with ErrUnavailable on
// transport errors; an absent folder yields an empty listing.
func (g *Gateway) List(ctx context.Context, folder string) ([]Entry, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	start := time.Now()
	entries, err := g.client.List(ctx, folder)
	if err != nil && errors.Is(err, ErrNotFound) {
		_ = g.observe("list", folder, start, nil)
		return nil, nil
	}
	return entries, g.observe("list", folder, start, err)
}

// Delete removes an object. Deleting an absent object is not an error.
func (g *Gateway) Delete(ctx context.Context, path string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	start := time.Now()
	err := g.client.Delete(ctx, path)
	if err != nil && errors.Is(err, ErrNotFound) {
		err = nil
	}
	return g.observe("delete", path, start, err)
}

// Copy duplicates an object. The source is left untouched.
func (g *Gateway) Copy(ctx context.Context, src, dst string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	start := time.Now()
	err := g.client.Copy(ctx, src, dst)
	return g.observe("copy", src, start, err)
}

// Move renames an object.
func (g *Gateway) Move(ctx context.Context, src, dst string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	start := time.Now()
	err := g.client.Move(ctx, src, dst)
	return g.observe("move", src, start, err)
}

// cancelReadCloser releases the open-call context when the stream is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}

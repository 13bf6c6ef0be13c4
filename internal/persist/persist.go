// Package persist writes catalog documents back to the remote store
// durably: backup before overwrite, bounded exponential-backoff retry on
// write failure, and a verification read-back after success. Safety comes
// from the backup taken before the write, not from the verification.
package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shareport/shareport/internal/gateway"
)

// ErrRetriesExhausted is returned when every write attempt failed. Callers
// on account-critical paths must surface this; callers on best-effort paths
// may proceed with the in-memory view.
var ErrRetriesExhausted = errors.New("persist: retries exhausted")

// VerifyFunc checks that a read-back payload round-trips to the expected
// structural content. A nil VerifyFunc skips verification.
type VerifyFunc func(data []byte) error

// Options tune the controller. Zero values select the defaults.
type Options struct {
	MaxAttempts int           // write attempts before giving up (default 4)
	BaseDelay   time.Duration // first backoff delay, doubled each retry (default 250ms)
	VerifyDelay time.Duration // pause before the verification read-back (default 150ms)
	KeepBackups int           // rotating backups retained per series (default 5)
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.VerifyDelay <= 0 {
		o.VerifyDelay = 150 * time.Millisecond
	}
	if o.KeepBackups <= 0 {
		o.KeepBackups = 5
	}
}

// Controller is the durable persistence controller.
type Controller struct {
	gw     *gateway.Gateway
	opts   Options
	logger zerolog.Logger

	// sleep is swappable so tests do not wait out real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a controller over the given gateway.
func New(gw *gateway.Gateway, opts Options, logger zerolog.Logger) *Controller {
	opts.defaults()
	return &Controller{
		gw:     gw,
		opts:   opts,
		logger: logger.With().Str("component", "persist").Logger(),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackupPath returns the sibling backup path for a document:
// "accounts.json" becomes "accounts.backup.json".
func BackupPath(docPath string) string {
	ext := path.Ext(docPath)
	return strings.TrimSuffix(docPath, ext) + ".backup" + ext
}

// Persist durably writes a document. Steps: back up any existing document
// to its sibling backup path (failure logged, not fatal), write with
// bounded retry, then read the document back and run verify. A verify
// mismatch is a warning, not a retry: the write already happened and the
// pre-write backup is the real safety net.
func (c *Controller) Persist(ctx context.Context, docPath string, payload []byte, verify VerifyFunc) error {
	c.backup(ctx, docPath)

	if err := c.writeWithRetry(ctx, docPath, payload); err != nil {
		return err
	}

	c.verifyReadBack(ctx, docPath, payload, verify)
	return nil
}

// backup copies the current document aside before it is overwritten.
func (c *Controller) backup(ctx context.Context, docPath string) {
	exists, err := c.gw.Exists(ctx, docPath)
	if err != nil || !exists {
		return
	}
	if err := c.gw.Copy(ctx, docPath, BackupPath(docPath)); err != nil {
		// Availability of the main write wins over perfect backup history.
		backupFailures.Inc()
		c.logger.Warn().Err(err).Str("path", docPath).Msg("Pre-write backup failed")
	}
}

func (c *Controller) writeWithRetry(ctx context.Context, docPath string, payload []byte) error {
	delay := c.opts.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		err := c.gw.Write(ctx, docPath, bytes.NewReader(payload))
		if err == nil {
			if attempt > 1 {
				c.logger.Info().Str("path", docPath).Int("attempt", attempt).
					Msg("Write succeeded after retry")
			}
			return nil
		}
		lastErr = err
		writeRetries.Inc()
		c.logger.Warn().Err(err).Str("path", docPath).Int("attempt", attempt).
			Msg("Write failed")

		if attempt == c.opts.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}
		delay *= 2
	}
	writeFailures.Inc()
	return fmt.Errorf("%w: %s: %v", ErrRetriesExhausted, docPath, lastErr)
}

func (c *Controller) verifyReadBack(ctx context.Context, docPath string, payload []byte, verify VerifyFunc) {
	if verify == nil {
		return
	}
	// The remote store has no read-after-write guarantee; give it a moment.
	if err := c.sleep(ctx, c.opts.VerifyDelay); err != nil {
		return
	}
	data, err := c.gw.ReadAll(ctx, docPath)
	if err != nil {
		verifyFailures.Inc()
		c.logger.Warn().Err(err).Str("path", docPath).Msg("Verification read-back failed")
		return
	}
	if err := verify(data); err != nil {
		verifyFailures.Inc()
		c.logger.Warn().Err(err).Str("path", docPath).Int("written", len(payload)).
			Int("read", len(data)).Msg("Verification mismatch after write")
	}
}

// PersistRotating writes a timestamped document into a rotating series and
// garbage-collects the series down to the newest KeepBackups documents.
// Series membership is by filename prefix within dir.
func (c *Controller) PersistRotating(ctx context.Context, dir, docPath, prefix string, payload []byte) error {
	if err := c.writeWithRetry(ctx, docPath, payload); err != nil {
		return err
	}
	c.gcRotating(ctx, dir, prefix)
	return nil
}

// gcRotating deletes all but the newest KeepBackups series members. The
// timestamp embedded in the name sorts lexicographically by age for
// equal-width stamps; modification time breaks ties.
func (c *Controller) gcRotating(ctx context.Context, dir, prefix string) {
	entries, err := c.gw.List(ctx, dir)
	if err != nil {
		c.logger.Warn().Err(err).Str("dir", dir).Msg("Backup listing failed, skipping GC")
		return
	}

	var series []gateway.Entry
	for _, e := range entries {
		if !e.Dir && strings.HasPrefix(e.Name, prefix) {
			series = append(series, e)
		}
	}
	if len(series) <= c.opts.KeepBackups {
		return
	}
	sort.Slice(series, func(i, j int) bool {
		if !series[i].Modified.Equal(series[j].Modified) {
			return series[i].Modified.After(series[j].Modified)
		}
		return series[i].Name > series[j].Name
	})
	for _, e := range series[c.opts.KeepBackups:] {
		if err := c.gw.Delete(ctx, path.Join(dir, e.Name)); err != nil {
			c.logger.Warn().Err(err).Str("name", e.Name).Msg("Backup GC delete failed")
		}
	}
}

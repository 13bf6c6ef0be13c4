// Package reconcile derives the authoritative catalog from an untrusted
// remote listing merged with locally cached metadata. A scan never trusts
// the remote store: every call can fail, time out, or return stale data,
// and a failed listing must leave the prior catalog untouched.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shareport/shareport/internal/catalog"
	"github.com/shareport/shareport/internal/gateway"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Scanned   int
	Added     int
	Retired   int
	StartedAt time.Time
	Duration  time.Duration
}

// pass tracks one in-flight reconciliation so concurrent triggers can join
// it instead of scanning twice.
type pass struct {
	done   chan struct{}
	result Result
	err    error
}

// Reconciler scans the remote file folder and commits the merged state
// through the catalog facade.
type Reconciler struct {
	gw     *gateway.Gateway
	codec  *catalog.Codec
	facade *catalog.Facade
	logger zerolog.Logger

	interval time.Duration
	cancel   context.CancelFunc

	mu      sync.Mutex
	current *pass

	lastMu   sync.RWMutex
	lastErr  error
	lastTime time.Time
}

// New creates a reconciler.
func New(gw *gateway.Gateway, codec *catalog.Codec, facade *catalog.Facade, interval time.Duration, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		gw:       gw,
		codec:    codec,
		facade:   facade,
		interval: interval,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// Start launches the periodic background scan. A zero interval disables it.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := r.Run(runCtx); err != nil {
					r.logger.Warn().Err(err).Msg("Periodic reconciliation failed")
				}
			}
		}
	}()

	r.logger.Info().Dur("interval", r.interval).Msg("Reconciliation started")
}

// Stop cancels the background scan.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Run performs one reconciliation pass. A call made while a pass is already
// in flight joins that pass and returns its result instead of scanning
// again.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if p := r.current; p != nil {
		coalescedTotal.Inc()
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.result, p.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	p := &pass{done: make(chan struct{})}
	r.current = p
	r.mu.Unlock()

	p.result, p.err = r.runPass(ctx)
	close(p.done)

	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()

	r.lastMu.Lock()
	r.lastErr = p.err
	r.lastTime = time.Now().UTC()
	r.lastMu.Unlock()

	return p.result, p.err
}

// Healthy reports whether the most recent pass succeeded, and when it ran.
// A reconciler that has never run is considered healthy; the catalog simply
// serves its last-known state.
func (r *Reconciler) Healthy() (bool, time.Time) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.lastErr == nil, r.lastTime
}

func (r *Reconciler) runPass(ctx context.Context) (Result, error) {
	started := time.Now().UTC()
	runsTotal.Inc()

	// Step 1: list the remote file folder. A failed or timed-out listing
	// aborts the pass outright; the prior in-memory catalog survives.
	listing, err := r.gw.List(ctx, r.codec.Layout().FilesDir())
	if err != nil {
		failuresTotal.Inc()
		return Result{}, fmt.Errorf("%w: listing failed: %v", catalog.ErrRemoteUnavailable, err)
	}

	// Step 2: drop folders and reserved metadata documents.
	scan := make([]catalog.ScanEntry, 0, len(listing))
	for _, e := range listing {
		if e.Dir || catalog.IsReservedName(e.Name) {
			continue
		}
		scan = append(scan, catalog.ScanEntry{Name: e.Name, Size: e.Size, Modified: e.Modified})
	}

	// Step 3: cached sidecar metadata. Losing it costs only uploader and
	// display-name enrichment for newly discovered objects, so a transport
	// failure here degrades instead of aborting.
	cached, err := r.codec.LoadCachedMeta(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Cached metadata unavailable, discovered entries get defaults")
		cached = map[string]catalog.CachedMeta{}
	}

	// Steps 4-5: merge into the catalog and write the result back. The
	// pass start time bounds retirement: uploads committed while the
	// listing or the sidecar reads were in flight are not in the listing
	// and must survive the merge.
	added, retired := r.facade.ApplyScan(scan, cached, started)
	if err := r.facade.PersistCatalog(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Reconciled catalog not persisted, remote copy is stale")
	}

	result := Result{
		Scanned:   len(scan),
		Added:     added,
		Retired:   retired,
		StartedAt: started,
		Duration:  time.Since(started),
	}

	discoveredTotal.Add(float64(added))
	retiredTotal.Add(float64(retired))
	duration.Observe(result.Duration.Seconds())

	r.logger.Info().
		Int("scanned", result.Scanned).
		Int("added", result.Added).
		Int("retired", result.Retired).
		Dur("duration", result.Duration).
		Msg("Reconciliation completed")
	return result, nil
}

// Package audit provides structured audit logging for every successful
// mutation. Events are logged with structured fields, buffered in memory
// for the admin panel, broadcast to live subscribers, and periodically
// backed up to the remote store as rotating JSON documents.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event kinds emitted by the catalog facade.
const (
	KindUpload    = "file_upload"
	KindRename    = "file_rename"
	KindDelete    = "file_delete"
	KindPurge     = "purge_all"
	KindReconcile = "reconcile"
	KindUserMgmt  = "user_management"
	KindAuth      = "auth"
	KindGuardian  = "guardian_repair"
)

// Event is one audit record.
type Event struct {
	ID      string            `json:"id"`
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Actor   string            `json:"actor"`
	Details map[string]string `json:"details,omitempty"`
	Time    time.Time         `json:"time"`
}

// maxBuffered caps the in-memory event window kept for the admin panel.
const maxBuffered = 1000

// BackupWriter persists a rotating audit-log backup document. Implemented
// by the persistence controller.
type BackupWriter interface {
	PersistRotating(ctx context.Context, dir, docPath, prefix string, payload []byte) error
}

// Recorder collects audit events. All methods are safe for concurrent use.
type Recorder struct {
	logger zerolog.Logger

	mu     sync.Mutex
	events []Event
	subs   map[chan Event]struct{}

	writer     BackupWriter
	backupDir  string
	pathFor    func(time.Time) string
	sinceFlush int
}

// NewRecorder creates a recorder. writer may be nil to disable remote
// backups (tests, local-only deployments).
func NewRecorder(logger zerolog.Logger, writer BackupWriter, backupDir string, pathFor func(time.Time) string) *Recorder {
	return &Recorder{
		logger:    logger.With().Str("component", "audit").Logger(),
		subs:      make(map[chan Event]struct{}),
		writer:    writer,
		backupDir: backupDir,
		pathFor:   pathFor,
	}
}

// Emit records a mutation event. It satisfies the catalog facade's emitter
// contract.
func (r *Recorder) Emit(kind, message, actor string, details map[string]string) {
	e := Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		Actor:   actor,
		Details: details,
		Time:    time.Now().UTC(),
	}

	ev := r.logger.Info().
		Str("event_id", e.ID).
		Str("kind", e.Kind).
		Str("actor", e.Actor)
	for k, v := range details {
		ev = ev.Str(k, v)
	}
	ev.Msg(message)

	r.mu.Lock()
	r.events = append(r.events, e)
	if len(r.events) > maxBuffered {
		r.events = r.events[len(r.events)-maxBuffered:]
	}
	r.sinceFlush++
	for ch := range r.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber, drop the event for it.
		}
	}
	r.mu.Unlock()
}

// Subscribe returns a live event channel and a cancel function. Slow
// subscribers lose events rather than blocking mutations.
func (r *Recorder) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns the buffered event window, newest last.
func (r *Recorder) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Flush writes the buffered events to a timestamped remote backup document.
// A flush with nothing new since the last one is a no-op.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	r.mu.Lock()
	if r.sinceFlush == 0 {
		r.mu.Unlock()
		return nil
	}
	pending := r.sinceFlush
	snapshot := make([]Event, len(r.events))
	copy(snapshot, r.events)
	r.mu.Unlock()

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := r.writer.PersistRotating(ctx, r.backupDir, r.pathFor(now), "logs_backup_", payload); err != nil {
		// Counter untouched: the failed window is retried on the next
		// flush tick, not parked until a new event arrives.
		return err
	}

	r.mu.Lock()
	r.sinceFlush -= pending
	if r.sinceFlush < 0 {
		r.sinceFlush = 0
	}
	r.mu.Unlock()
	return nil
}

// Start runs a background flusher until the context is cancelled. A final
// flush happens on shutdown.
func (r *Recorder) Start(ctx context.Context, interval time.Duration) {
	if r.writer == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := r.Flush(flushCtx); err != nil {
					r.logger.Warn().Err(err).Msg("Final audit flush failed")
				}
				cancel()
				return
			case <-ticker.C:
				if err := r.Flush(ctx); err != nil {
					r.logger.Warn().Err(err).Msg("Audit flush failed")
				}
			}
		}
	}()
}

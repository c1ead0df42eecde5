// Package syncer mirrors remote ceremony objects into the local contribution
// store, fetching only what is not already present.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ceremony/internal/artifact"
	"ceremony/internal/catalog"
	"ceremony/internal/contrib"
	"ceremony/internal/logging"
)

// DefaultWorkers bounds concurrent downloads so the remote store is not throttled.
const DefaultWorkers = 10

// Getter is the part of the remote store the syncer needs.
type Getter interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Outcome is the result of fetching one key.
type Outcome struct {
	Key      string
	Path     string
	Class    artifact.Class
	Bytes    int64
	Duration time.Duration
	Err      error
}

// OK reports whether the object was written locally.
func (o Outcome) OK() bool { return o.Err == nil }

// Report summarizes one Sync call.
type Report struct {
	Artifacts    int // remote artifacts in the listing
	Receipts     int // remote receipts in the listing
	NewArtifacts int
	NewReceipts  int
	Outcomes     []Outcome // completion order
}

// Failed returns the outcomes that did not produce a local file.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Fetched returns the number of objects written locally.
func (r *Report) Fetched() int {
	return len(r.Outcomes) - len(r.Failed())
}

// Syncer copies missing objects from a Getter into a contrib.Store.
type Syncer struct {
	src     Getter
	store   *contrib.Store
	workers int
	logger  *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithWorkers sets the download pool width. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Syncer fetching from src into store.
func New(src Getter, store *contrib.Store, opts ...Option) *Syncer {
	s := &Syncer{
		src:     src,
		store:   store,
		workers: DefaultWorkers,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pending returns the entries whose local path does not exist yet. The
// filesystem is queried on every call.
func (s *Syncer) Pending(entries []catalog.Entry) []catalog.Entry {
	var out []catalog.Entry
	for _, e := range entries {
		if !s.store.Exists(s.store.PathFor(e.Name)) {
			out = append(out, e)
		}
	}
	return out
}

// Sync fetches every listed object missing locally. A failed fetch is
// reported in its Outcome and never stops the others. onOutcome, if set, is
// called from a single goroutine as each fetch completes. The returned error
// is non-nil only when ctx ends before all fetches were dispatched.
func (s *Syncer) Sync(ctx context.Context, l *catalog.Listing, onOutcome func(Outcome)) (*Report, error) {
	newArtifacts := s.Pending(l.Artifacts)
	newReceipts := s.Pending(l.Receipts)
	rep := &Report{
		Artifacts:    len(l.Artifacts),
		Receipts:     len(l.Receipts),
		NewArtifacts: len(newArtifacts),
		NewReceipts:  len(newReceipts),
	}
	s.logger.InfoContext(ctx, "sync plan",
		"artifacts", rep.Artifacts, "new_artifacts", rep.NewArtifacts,
		"receipts", rep.Receipts, "new_receipts", rep.NewReceipts, "workers", s.workers)

	pending := append(newArtifacts, newReceipts...)
	if len(pending) == 0 {
		return rep, nil
	}

	results := make(chan Outcome)
	var g errgroup.Group
	g.SetLimit(s.workers)
	go func() {
		for _, e := range pending {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- s.fetch(ctx, e)
				return nil
			})
		}
		_ = g.Wait() // failures are carried in Outcome.Err
		close(results)
	}()

	for o := range results {
		rep.Outcomes = append(rep.Outcomes, o)
		if onOutcome != nil {
			onOutcome(o)
		}
	}
	if len(rep.Outcomes) < len(pending) {
		return rep, fmt.Errorf("sync interrupted after %d of %d objects: %w", len(rep.Outcomes), len(pending), ctx.Err())
	}
	return rep, nil
}

func (s *Syncer) fetch(ctx context.Context, e catalog.Entry) Outcome {
	start := time.Now()
	path := s.store.PathFor(e.Name)
	o := Outcome{Key: e.Key, Path: path, Class: e.Name.Class}

	body, err := s.src.Get(ctx, e.Key)
	if err != nil {
		o.Err = err
		o.Duration = time.Since(start)
		s.logger.WarnContext(ctx, "download failed", "key", e.Key, "error", err)
		return o
	}
	defer body.Close()

	n, err := s.store.WriteAtomic(path, body)
	o.Bytes = n
	o.Duration = time.Since(start)
	if err != nil {
		o.Err = fmt.Errorf("store %s: %w", e.Key, err)
		s.logger.WarnContext(ctx, "download failed", "key", e.Key, "error", err)
		return o
	}
	s.logger.DebugContext(ctx, "downloaded", "key", e.Key, "path", path, "bytes", n)
	return o
}

package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const instrName = "github.com/tilsley/s3mirror"

// DefaultConcurrency bounds in-flight records when EngineConfig leaves it unset.
const DefaultConcurrency = 8

// EngineConfig tunes a reconciliation Engine.
type EngineConfig struct {
	// Concurrency is the maximum number of records processed at once.
	Concurrency int
	// KeyPrefix is prepended to every object key. "{owner}" and "{repo}" are
	// replaced with the commit's repository coordinates.
	KeyPrefix string
}

// Engine applies a change set to the destination store.
type Engine struct {
	fetcher BlobFetcher
	store   StorageGateway
	cfg     EngineConfig
	log     *slog.Logger

	synced      metric.Int64Counter
	failed      metric.Int64Counter
	runDuration metric.Float64Histogram
}

// NewEngine creates an Engine.
func NewEngine(fetcher BlobFetcher, store StorageGateway, cfg EngineConfig, log *slog.Logger) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	m := otel.Meter(instrName)
	synced, _ := m.Int64Counter("mirror.files.synced",
		metric.WithDescription("Number of change records reconciled successfully"))
	failed, _ := m.Int64Counter("mirror.files.failed",
		metric.WithDescription("Number of change records that failed"))
	runDuration, _ := m.Float64Histogram("mirror.run.duration",
		metric.WithDescription("Reconciliation run duration in milliseconds"),
		metric.WithUnit("ms"))

	return &Engine{
		fetcher:     fetcher,
		store:       store,
		cfg:         cfg,
		log:         log,
		synced:      synced,
		failed:      failed,
		runDuration: runDuration,
	}
}

// Reconcile processes every record concurrently, at most Concurrency at a time,
// and returns once all of them reached a terminal state. A failing record never
// stops the others. Records not started before ctx is done are recorded as
// KindCancelled.
func (e *Engine) Reconcile(ctx context.Context, commit CommitContext, records []ChangeRecord) *Outcome {
	start := time.Now()
	col := newCollector()

	// Plain Group: a WithContext group would cancel siblings on the first error.
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			col.fail(rec.Path, &RecordError{Kind: KindCancelled, Path: rec.Path, Err: err})
			continue
		}
		g.Go(func() error {
			e.process(ctx, commit, rec, col)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks always return nil

	out := col.outcome()
	attrs := metric.WithAttributes(attribute.String("repo", commit.FullName()))
	e.synced.Add(ctx, int64(len(out.Succeeded)), attrs)
	e.failed.Add(ctx, int64(len(out.Failed)), attrs)
	e.runDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	return out
}

func (e *Engine) process(ctx context.Context, commit CommitContext, rec ChangeRecord, col *collector) {
	ctx, span := otel.Tracer(instrName).Start(ctx, "mirror.record",
		trace.WithAttributes(
			attribute.String("file.path", rec.Path),
			attribute.String("change.kind", string(rec.Kind)),
		),
	)
	defer span.End()

	log := e.log.With("path", rec.Path, "kind", rec.Kind, "commit", commit.CommitSHA)
	log.Debug("record pending")

	var recErr *RecordError
	if err := ctx.Err(); err != nil {
		recErr = &RecordError{Kind: KindCancelled, Path: rec.Path, Err: err}
	} else {
		switch rec.Kind {
		case ChangeAdded, ChangeModified:
			recErr = e.upsert(ctx, commit, rec, log)
		case ChangeRemoved:
			recErr = e.remove(ctx, commit, rec.Path, log)
		case ChangeRenamed:
			// Delete first; the put is attempted whatever the delete returned.
			delErr := e.remove(ctx, commit, rec.PreviousPath, log)
			putErr := e.upsert(ctx, commit, rec, log)
			recErr = joinRename(delErr, putErr)
		default:
			recErr = &RecordError{
				Kind: KindUnrecognizedChangeStatus,
				Path: rec.Path,
				Err:  fmt.Errorf("unknown change kind %q", rec.Kind),
			}
		}
	}

	if recErr != nil {
		span.RecordError(recErr)
		span.SetStatus(codes.Error, string(recErr.Kind))
		log.Warn("record failed", "errorKind", recErr.Kind, "error", recErr.Err)
		col.fail(rec.Path, recErr)
		return
	}
	log.Debug("record done")
	col.succeed(rec.Path)
}

func (e *Engine) upsert(ctx context.Context, commit CommitContext, rec ChangeRecord, log *slog.Logger) *RecordError {
	log.Debug("record fetching")
	data, err := e.fetcher.Fetch(ctx, commit, rec)
	if err != nil {
		return &RecordError{Kind: KindFetchFailed, Path: rec.Path, Err: err}
	}

	mediaType, isText := Classify(rec.Path)
	log.Debug("record storing", "op", "put", "bytes", len(data), "mediaType", mediaType)
	if err := e.store.Put(ctx, e.Key(commit, rec.Path), data, ContentTypeHeader(mediaType, isText)); err != nil {
		return &RecordError{Kind: KindStoreFailed, Path: rec.Path, Err: err}
	}
	return nil
}

func (e *Engine) remove(ctx context.Context, commit CommitContext, p string, log *slog.Logger) *RecordError {
	log.Debug("record storing", "op", "delete", "key", p)
	if err := e.store.Delete(ctx, e.Key(commit, p)); err != nil {
		return &RecordError{Kind: KindStoreFailed, Path: p, Err: err}
	}
	return nil
}

// ArchiveContentType is the Content-Type a commit snapshot is stored with.
const ArchiveContentType = "application/gzip"

// ArchivePath is the path a commit's tarball snapshot is reported and stored
// under, relative to the key prefix.
func ArchivePath(commit CommitContext) string {
	return commit.CommitSHA + ".tar.gz"
}

// Snapshot downloads the repository tarball at commit and stores it under
// ArchivePath.
func (e *Engine) Snapshot(ctx context.Context, commit CommitContext, archiver ArchiveFetcher) *RecordError {
	p := ArchivePath(commit)
	ctx, span := otel.Tracer(instrName).Start(ctx, "mirror.snapshot",
		trace.WithAttributes(attribute.String("file.path", p)))
	defer span.End()

	log := e.log.With("path", p, "commit", commit.CommitSHA)
	recErr := e.snapshot(ctx, commit, archiver, p, log)
	attrs := metric.WithAttributes(attribute.String("repo", commit.FullName()))
	if recErr != nil {
		span.RecordError(recErr)
		span.SetStatus(codes.Error, string(recErr.Kind))
		log.Warn("snapshot failed", "errorKind", recErr.Kind, "error", recErr.Err)
		e.failed.Add(ctx, 1, attrs)
		return recErr
	}
	e.synced.Add(ctx, 1, attrs)
	return nil
}

func (e *Engine) snapshot(ctx context.Context, commit CommitContext, archiver ArchiveFetcher, p string, log *slog.Logger) *RecordError {
	if err := ctx.Err(); err != nil {
		return &RecordError{Kind: KindCancelled, Path: p, Err: err}
	}
	data, err := archiver.Archive(ctx, commit)
	if err != nil {
		return &RecordError{Kind: KindFetchFailed, Path: p, Err: err}
	}
	log.Debug("snapshot storing", "bytes", len(data))
	if err := e.store.Put(ctx, e.Key(commit, p), data, ArchiveContentType); err != nil {
		return &RecordError{Kind: KindStoreFailed, Path: p, Err: err}
	}
	return nil
}

// Key returns the object key a repository path is stored under.
func (e *Engine) Key(commit CommitContext, p string) string {
	if e.cfg.KeyPrefix == "" {
		return p
	}
	prefix := strings.NewReplacer("{owner}", commit.Owner, "{repo}", commit.Repo).Replace(e.cfg.KeyPrefix)
	return prefix + p
}

// joinRename reports the put failure when there is one, folding a delete
// failure into its cause; a lone delete failure is reported against the
// previous path.
func joinRename(delErr, putErr *RecordError) *RecordError {
	switch {
	case putErr != nil && delErr != nil:
		return &RecordError{Kind: putErr.Kind, Path: putErr.Path, Err: errors.Join(putErr.Err, delErr)}
	case putErr != nil:
		return putErr
	default:
		return delErr
	}
}

// collector is the only state shared between record tasks.
type collector struct {
	mu        sync.Mutex
	succeeded map[string]struct{}
	failed    map[string]*RecordError
}

func newCollector() *collector {
	return &collector{
		succeeded: make(map[string]struct{}),
		failed:    make(map[string]*RecordError),
	}
}

func (c *collector) succeed(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, failed := c.failed[p]; failed {
		return
	}
	c.succeeded[p] = struct{}{}
}

func (c *collector) fail(p string, err *RecordError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.succeeded, p)
	c.failed[p] = err
}

func (c *collector) outcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	succeeded := make([]string, 0, len(c.succeeded))
	for p := range c.succeeded {
		succeeded = append(succeeded, p)
	}
	sort.Strings(succeeded)
	failed := make(map[string]*RecordError, len(c.failed))
	for p, err := range c.failed {
		failed[p] = err
	}
	return &Outcome{Succeeded: succeeded, Failed: failed}
}

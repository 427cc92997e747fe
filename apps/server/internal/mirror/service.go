package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Service is the reconciliation entry point: it turns one inbound event into
// one Run. It depends only on port interfaces.
type Service struct {
	lister   ChangeLister
	engine   *Engine
	creds    CredentialProvider
	guard    DeliveryGuard
	runs     RunStore
	archiver ArchiveFetcher
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithDeliveryGuard drops repeated deliveries of the same event.
func WithDeliveryGuard(g DeliveryGuard) ServiceOption {
	return func(s *Service) { s.guard = g }
}

// WithRunStore records every completed run.
func WithRunStore(r RunStore) ServiceOption {
	return func(s *Service) { s.runs = r }
}

// WithArchive also stores a tarball snapshot of the repository at every
// reconciled commit, reported under ArchivePath.
func WithArchive(a ArchiveFetcher) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// NewService creates a new Service.
func NewService(lister ChangeLister, engine *Engine, creds CredentialProvider, log *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		lister: lister,
		engine: engine,
		creds:  creds,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile validates ev and, when it is in scope, mirrors the commit it names.
// Out-of-scope events and repeated deliveries return a Run with StatusSkipped.
// Run-fatal failures return a *RunError and no Run.
func (s *Service) Reconcile(ctx context.Context, ev Event) (*Run, error) {
	deliveryID := ev.Attr(DeliveryAttr)

	trigger, ok, err := Accept(ev)
	if err != nil {
		s.log.Warn("rejected malformed event", "delivery", deliveryID, "event", ev.Attr(EventTypeAttr), "error", err)
		return nil, err
	}
	if !ok {
		s.log.Info("event out of scope, ignoring", "delivery", deliveryID, "event", ev.Attr(EventTypeAttr))
		return s.skipped(deliveryID, "", CommitContext{}, "event out of scope"), nil
	}

	commit := trigger.Commit()
	claimed := false
	if deliveryID != "" && s.guard != nil {
		first, err := s.guard.FirstDelivery(ctx, deliveryID)
		switch {
		case err != nil:
			s.log.Warn("delivery guard unavailable, processing anyway", "delivery", deliveryID, "error", err)
		case !first:
			s.log.Info("duplicate delivery, ignoring", "delivery", deliveryID, "repo", commit.FullName())
			return s.skipped(deliveryID, trigger.Name(), commit, "duplicate delivery"), nil
		default:
			claimed = true
		}
	}

	run := &Run{DeliveryID: deliveryID, Trigger: trigger.Name(), Commit: commit}
	result, err := s.execute(ctx, run, nil)
	if err != nil && claimed {
		s.release(ctx, deliveryID)
	}
	return result, err
}

// release gives up the claim on a delivery whose run failed before reaching
// the store, so the sender's redelivery is reconciled instead of skipped.
func (s *Service) release(ctx context.Context, deliveryID string) {
	if err := s.guard.Release(context.WithoutCancel(ctx), deliveryID); err != nil {
		s.log.Warn("release delivery claim failed", "delivery", deliveryID, "error", err)
	}
}

// Replay reconciles commit again, restricted to paths. Callers use it to retry
// the failed paths of an earlier run; retryOf names that run and may be empty.
func (s *Service) Replay(ctx context.Context, commit CommitContext, paths []string, retryOf string) (*Run, error) {
	if len(paths) == 0 {
		return nil, &RunError{Kind: KindEmptyChangeSet, Err: errors.New("no paths to replay")}
	}
	run := &Run{Trigger: "replay", Commit: commit, RetryOf: retryOf}
	return s.execute(ctx, run, paths)
}

// ReconcileCommit mirrors a commit directly, bypassing the event gate.
func (s *Service) ReconcileCommit(ctx context.Context, commit CommitContext) (*Run, error) {
	run := &Run{Trigger: "manual", Commit: commit}
	return s.execute(ctx, run, nil)
}

func (s *Service) execute(ctx context.Context, run *Run, only []string) (*Run, error) {
	run.ID = uuid.New().String()
	run.StartedAt = s.now()
	log := s.log.With("run", run.ID, "repo", run.Commit.FullName(), "commit", run.Commit.CommitSHA)

	if _, err := s.creds.Token(ctx); err != nil {
		log.Error("credential unavailable", "error", err)
		return nil, &RunError{Kind: KindCredentialUnavailable, Err: err}
	}

	raw, err := s.lister.ChangedFiles(ctx, run.Commit)
	if err != nil {
		log.Error("list changed files failed", "error", err)
		return nil, &RunError{Kind: KindChangeSetUnavailable, Err: err}
	}

	records, err := BuildChangeSet(raw)
	if err != nil {
		log.Error("invalid change set", "error", err)
		return nil, err
	}
	archive := s.archiver != nil
	if only != nil {
		archive = archive && slices.Contains(only, ArchivePath(run.Commit))
		records = restrict(records, only)
		if len(records) == 0 && !archive {
			return nil, &RunError{Kind: KindEmptyChangeSet, Err: fmt.Errorf("none of %d paths changed in %s", len(only), run.Commit.CommitSHA)}
		}
	}

	log.Info("reconciling", "trigger", run.Trigger, "records", len(records), "archive", archive)
	run.Outcome = s.engine.Reconcile(ctx, run.Commit, records)
	if archive {
		run.Outcome.add(ArchivePath(run.Commit), s.engine.Snapshot(ctx, run.Commit, s.archiver))
	}
	run.FinishedAt = s.now()
	run.Status = StatusCompleted
	if run.Outcome.Partial() {
		run.Status = StatusPartial
	}
	log.Info("reconciled",
		"status", run.Status,
		"succeeded", len(run.Outcome.Succeeded),
		"failed", len(run.Outcome.Failed),
		"durationMs", run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	)

	s.record(ctx, *run)
	return run, nil
}

func (s *Service) skipped(deliveryID, trigger string, commit CommitContext, reason string) *Run {
	now := s.now()
	return &Run{
		DeliveryID: deliveryID,
		Trigger:    trigger,
		Commit:     commit,
		Status:     StatusSkipped,
		Reason:     reason,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (s *Service) record(ctx context.Context, run Run) {
	if s.runs == nil {
		return
	}
	// Recording outlives the request deadline that bounded the run.
	ctx = context.WithoutCancel(ctx)
	if err := s.runs.SaveRun(ctx, run); err != nil {
		s.log.Error("failed to record run", "run", run.ID, "error", err)
	}
}

func restrict(records []ChangeRecord, paths []string) []ChangeRecord {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}
	out := records[:0:0]
	for _, r := range records {
		if want[r.Path] {
			out = append(out, r)
		}
	}
	return out
}

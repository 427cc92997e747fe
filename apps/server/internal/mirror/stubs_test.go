package mirror_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time interface compliance checks.
var (
	_ mirror.BlobFetcher        = (*stubFetcher)(nil)
	_ mirror.StorageGateway     = (*stubStore)(nil)
	_ mirror.ChangeLister       = (*stubLister)(nil)
	_ mirror.CredentialProvider = (*stubCreds)(nil)
	_ mirror.DeliveryGuard      = (*stubGuard)(nil)
	_ mirror.RunStore           = (*stubRuns)(nil)
	_ mirror.ArchiveFetcher     = (*stubArchiver)(nil)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ─── stubFetcher ──────────────────────────────────────────────────────────────

type stubFetcher struct {
	fetchFn func(ctx context.Context, commit mirror.CommitContext, rec mirror.ChangeRecord) ([]byte, error)

	mu    sync.Mutex
	calls []string
}

func (f *stubFetcher) Fetch(ctx context.Context, commit mirror.CommitContext, rec mirror.ChangeRecord) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rec.Path)
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(ctx, commit, rec)
	}
	return []byte("content of " + rec.Path), nil
}

func (f *stubFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// ─── stubStore ────────────────────────────────────────────────────────────────

type storeOp struct {
	Op          string
	Key         string
	ContentType string
	Data        string
}

type stubStore struct {
	putFn    func(ctx context.Context, key string, data []byte, contentType string) error
	deleteFn func(ctx context.Context, key string) error

	mu  sync.Mutex
	ops []storeOp
}

func (s *stubStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	s.ops = append(s.ops, storeOp{Op: "put", Key: key, ContentType: contentType, Data: string(data)})
	s.mu.Unlock()
	if s.putFn != nil {
		return s.putFn(ctx, key, data, contentType)
	}
	return nil
}

func (s *stubStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.ops = append(s.ops, storeOp{Op: "delete", Key: key})
	s.mu.Unlock()
	if s.deleteFn != nil {
		return s.deleteFn(ctx, key)
	}
	return nil
}

func (s *stubStore) Ops() []storeOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeOp(nil), s.ops...)
}

// ─── stubLister ───────────────────────────────────────────────────────────────

type stubLister struct {
	files []mirror.RawFile
	err   error
	// errs, when set, is consumed one entry per call before err applies.
	errs  []error
	calls int
	last  mirror.CommitContext
}

func (l *stubLister) ChangedFiles(_ context.Context, commit mirror.CommitContext) ([]mirror.RawFile, error) {
	l.calls++
	l.last = commit
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return l.files, l.err
}

// ─── stubCreds ────────────────────────────────────────────────────────────────

type stubCreds struct {
	token string
	err   error
	calls int
}

func (c *stubCreds) Token(context.Context) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if c.token == "" {
		return "ghp_test", nil
	}
	return c.token, nil
}

// ─── stubGuard ────────────────────────────────────────────────────────────────

type stubGuard struct {
	firstFn  func(ctx context.Context, id string) (bool, error)
	calls    int
	released []string
}

func (g *stubGuard) FirstDelivery(ctx context.Context, id string) (bool, error) {
	g.calls++
	if g.firstFn != nil {
		return g.firstFn(ctx, id)
	}
	return true, nil
}

func (g *stubGuard) Release(_ context.Context, id string) error {
	g.released = append(g.released, id)
	return nil
}

// ─── stubArchiver ─────────────────────────────────────────────────────────────

type stubArchiver struct {
	data  []byte
	err   error
	calls []mirror.CommitContext
}

func (a *stubArchiver) Archive(_ context.Context, commit mirror.CommitContext) ([]byte, error) {
	a.calls = append(a.calls, commit)
	if a.err != nil {
		return nil, a.err
	}
	return a.data, nil
}

// ─── stubRuns ─────────────────────────────────────────────────────────────────

type stubRuns struct {
	saveErr error
	saved   []mirror.Run
}

func (r *stubRuns) SaveRun(_ context.Context, run mirror.Run) error {
	r.saved = append(r.saved, run)
	return r.saveErr
}

func (r *stubRuns) GetRun(_ context.Context, id string) (*mirror.Run, error) {
	for i := range r.saved {
		if r.saved[i].ID == id {
			return &r.saved[i], nil
		}
	}
	return nil, mirror.RunNotFoundError{ID: id}
}

func (r *stubRuns) ListRuns(context.Context, int) ([]mirror.Run, error) {
	return r.saved, nil
}

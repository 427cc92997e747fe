package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *InMem implements the GitHub-backed ports.
var (
	_ mirror.ChangeLister   = (*InMem)(nil)
	_ mirror.BlobFetcher    = (*InMem)(nil)
	_ mirror.ArchiveFetcher = (*InMem)(nil)
)

// InMem is an in-memory ChangeLister and BlobFetcher for tests and dry runs.
type InMem struct {
	mu       sync.Mutex
	commits  map[string][]mirror.RawFile // "owner/repo@sha" -> files
	blobs    map[string][]byte           // blob sha -> content
	archives map[string][]byte           // "owner/repo@sha" -> tarball
	fails    map[string]error            // path -> fetch error
	delays   map[string]time.Duration    // path -> fetch delay
}

// NewInMem creates an empty InMem.
func NewInMem() *InMem {
	return &InMem{
		commits:  make(map[string][]mirror.RawFile),
		blobs:    make(map[string][]byte),
		archives: make(map[string][]byte),
		fails:    make(map[string]error),
		delays:   make(map[string]time.Duration),
	}
}

// SetCommit seeds the file list returned for owner/repo at sha.
func (m *InMem) SetCommit(owner, repo, sha string, files ...mirror.RawFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits[commitKey(owner, repo, sha)] = files
}

// SetBlob seeds the content returned for a blob SHA.
func (m *InMem) SetBlob(sha, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[sha] = []byte(content)
}

// SetArchive seeds the tarball returned for owner/repo at sha.
func (m *InMem) SetArchive(owner, repo, sha string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[commitKey(owner, repo, sha)] = append([]byte(nil), data...)
}

// FailFetch makes every fetch of path return err.
func (m *InMem) FailFetch(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[path] = err
}

// DelayFetch makes fetches of path wait d, or until the context is done.
func (m *InMem) DelayFetch(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = d
}

// ChangedFiles returns the seeded files of commit.CommitSHA. BaseSHA is ignored.
func (m *InMem) ChangedFiles(_ context.Context, commit mirror.CommitContext) ([]mirror.RawFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.commits[commitKey(commit.Owner, commit.Repo, commit.CommitSHA)]
	if !ok {
		return nil, fmt.Errorf("commit not found: %s@%s", commit.FullName(), commit.CommitSHA)
	}
	out := make([]mirror.RawFile, len(files))
	copy(out, files)
	return out, nil
}

// Fetch returns the seeded blob for rec.ContentRef.
func (m *InMem) Fetch(ctx context.Context, _ mirror.CommitContext, rec mirror.ChangeRecord) ([]byte, error) {
	m.mu.Lock()
	delay := m.delays[rec.Path]
	failErr := m.fails[rec.Path]
	data, ok := m.blobs[rec.ContentRef]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, fmt.Errorf("blob not found: %s (%s)", rec.ContentRef, rec.Path)
	}
	return append([]byte(nil), data...), nil
}

// Archive returns the seeded tarball of commit.
func (m *InMem) Archive(_ context.Context, commit mirror.CommitContext) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.archives[commitKey(commit.Owner, commit.Repo, commit.CommitSHA)]
	if !ok {
		return nil, fmt.Errorf("archive not found: %s@%s", commit.FullName(), commit.CommitSHA)
	}
	return append([]byte(nil), data...), nil
}

func commitKey(owner, repo, sha string) string {
	return owner + "/" + repo + "@" + sha
}

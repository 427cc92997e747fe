// Package github implements the mirror.ChangeLister and mirror.BlobFetcher
// ports using the official go-github library. Wire it up with an authenticated
// *github.Client from apps/server/internal/platform/github.
package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gogithub "github.com/google/go-github/v75/github"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

const (
	perPage = 100
	// compareFileCap is the most files GitHub returns from a compare.
	compareFileCap = 300
	// maxArchiveRedirects covers a renamed repository answering 301 before
	// the 302 to the download location.
	maxArchiveRedirects = 1
)

// Compile-time check: *Adapter implements the GitHub-backed ports.
var (
	_ mirror.ChangeLister   = (*Adapter)(nil)
	_ mirror.BlobFetcher    = (*Adapter)(nil)
	_ mirror.ArchiveFetcher = (*Adapter)(nil)
)

// Adapter wraps a go-github client. A single instance serves both the change
// listing of a run and the concurrent blob fetches of its records.
type Adapter struct {
	gh  *gogithub.Client
	log *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for listing warnings.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New creates an Adapter from an authenticated *github.Client.
func New(gh *gogithub.Client, opts ...Option) *Adapter {
	a := &Adapter{gh: gh, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ChangedFiles lists the files changed by commit. With a BaseSHA it compares
// base...head so a multi-commit push is covered; otherwise it reads the single
// commit. Entries repeated across pages are reported once.
func (a *Adapter) ChangedFiles(ctx context.Context, commit mirror.CommitContext) ([]mirror.RawFile, error) {
	if commit.BaseSHA != "" {
		return a.compare(ctx, commit)
	}

	var (
		files []mirror.RawFile
		seen  = make(map[string]bool)
		opts  = &gogithub.ListOptions{PerPage: perPage}
	)
	for {
		rc, resp, err := a.gh.Repositories.GetCommit(ctx, commit.Owner, commit.Repo, commit.CommitSHA, opts)
		if err != nil {
			return nil, fmt.Errorf("get commit %s/%s@%s: %w", commit.Owner, commit.Repo, commit.CommitSHA, err)
		}
		files = appendFiles(files, seen, rc.Files)
		if resp == nil || resp.NextPage == 0 {
			return files, nil
		}
		opts.Page = resp.NextPage
	}
}

// compare reads base...head in one call. The compare API pages through
// commits, not files: the whole file list arrives on the first page and GitHub
// stops at compareFileCap entries.
func (a *Adapter) compare(ctx context.Context, commit mirror.CommitContext) ([]mirror.RawFile, error) {
	cmp, _, err := a.gh.Repositories.CompareCommits(ctx, commit.Owner, commit.Repo, commit.BaseSHA, commit.CommitSHA, nil)
	if err != nil {
		return nil, fmt.Errorf("compare %s/%s %s...%s: %w", commit.Owner, commit.Repo, commit.BaseSHA, commit.CommitSHA, err)
	}
	if len(cmp.Files) >= compareFileCap {
		a.log.Warn("compare file list truncated, changes beyond it are not mirrored",
			"repo", commit.FullName(),
			"base", commit.BaseSHA,
			"head", commit.CommitSHA,
			"files", len(cmp.Files),
		)
	}
	return appendFiles(nil, make(map[string]bool), cmp.Files), nil
}

func appendFiles(files []mirror.RawFile, seen map[string]bool, page []*gogithub.CommitFile) []mirror.RawFile {
	for _, f := range page {
		name := f.GetFilename()
		if seen[name] {
			continue
		}
		seen[name] = true
		files = append(files, mirror.RawFile{
			Filename:         name,
			PreviousFilename: f.GetPreviousFilename(),
			Status:           f.GetStatus(),
			SHA:              f.GetSHA(),
		})
	}
	return files
}

// Fetch returns the raw bytes of rec at commit. Records carrying a blob SHA are
// read through the Git data API; others through the contents API at the commit.
func (a *Adapter) Fetch(ctx context.Context, commit mirror.CommitContext, rec mirror.ChangeRecord) ([]byte, error) {
	if rec.ContentRef != "" {
		data, _, err := a.gh.Git.GetBlobRaw(ctx, commit.Owner, commit.Repo, rec.ContentRef)
		if err != nil {
			return nil, fmt.Errorf("get blob %s for %s: %w", rec.ContentRef, rec.Path, err)
		}
		return data, nil
	}

	fc, _, _, err := a.gh.Repositories.GetContents(ctx, commit.Owner, commit.Repo, rec.Path,
		&gogithub.RepositoryContentGetOptions{Ref: commit.CommitSHA})
	if err != nil {
		return nil, fmt.Errorf("get contents %s/%s/%s@%s: %w", commit.Owner, commit.Repo, rec.Path, commit.CommitSHA, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("path %s is a directory, not a file", rec.Path)
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode content %s: %w", rec.Path, err)
	}
	return []byte(content), nil
}

// Archive downloads the gzipped tarball of the repository at commit. GitHub
// answers the archive request with a short-lived download location, which is
// then read with the client's authenticated transport.
func (a *Adapter) Archive(ctx context.Context, commit mirror.CommitContext) ([]byte, error) {
	loc, _, err := a.gh.Repositories.GetArchiveLink(ctx, commit.Owner, commit.Repo, gogithub.Tarball,
		&gogithub.RepositoryContentGetOptions{Ref: commit.CommitSHA}, maxArchiveRedirects)
	if err != nil {
		return nil, fmt.Errorf("archive link %s/%s@%s: %w", commit.Owner, commit.Repo, commit.CommitSHA, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("archive request: %w", err)
	}
	resp, err := a.gh.Client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download archive %s/%s@%s: %w", commit.Owner, commit.Repo, commit.CommitSHA, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download archive %s/%s@%s: unexpected status %s", commit.Owner, commit.Repo, commit.CommitSHA, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read archive %s/%s@%s: %w", commit.Owner, commit.Repo, commit.CommitSHA, err)
	}
	return data, nil
}

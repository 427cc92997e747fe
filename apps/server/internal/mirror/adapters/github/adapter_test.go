package github_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
	ghadapter "github.com/tilsley/s3mirror/apps/server/internal/mirror/adapters/github"
)

func newTestAdapter(t *testing.T, mux *http.ServeMux) *ghadapter.Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := gogithub.NewClient(nil)
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = u
	return ghadapter.New(gh)
}

var commit = mirror.CommitContext{Owner: "octo", Repo: "site", CommitSHA: "head"}

// ─── ChangedFiles ─────────────────────────────────────────────────────────────

func TestChangedFiles_SingleCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/commits/head", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `{"sha":"head","files":[
			{"filename":"a.md","status":"added","sha":"s1"},
			{"filename":"new.md","previous_filename":"old.md","status":"renamed","sha":"s2"},
			{"filename":"gone.txt","status":"removed","sha":"s3"}
		]}`)
	})

	files, err := newTestAdapter(t, mux).ChangedFiles(context.Background(), commit)
	require.NoError(t, err)
	assert.Equal(t, []mirror.RawFile{
		{Filename: "a.md", Status: "added", SHA: "s1"},
		{Filename: "new.md", PreviousFilename: "old.md", Status: "renamed", SHA: "s2"},
		{Filename: "gone.txt", Status: "removed", SHA: "s3"},
	}, files)
}

func TestChangedFiles_FollowsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/commits/head", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"files":[{"filename":"b.md","status":"added","sha":"s2"},{"filename":"a.md","status":"added","sha":"s1"}]}`)
			return
		}
		w.Header().Set("Link", `<http://`+r.Host+`/repos/octo/site/commits/head?page=2>; rel="next"`)
		fmt.Fprint(w, `{"files":[{"filename":"a.md","status":"added","sha":"s1"}]}`)
	})

	files, err := newTestAdapter(t, mux).ChangedFiles(context.Background(), commit)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.md", files[0].Filename)
	assert.Equal(t, "b.md", files[1].Filename)
}

func TestChangedFiles_CompareWithBase(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/compare/base...head", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"ahead","files":[{"filename":"a.md","status":"modified","sha":"s1"}]}`)
	})

	withBase := commit
	withBase.BaseSHA = "base"
	files, err := newTestAdapter(t, mux).ChangedFiles(context.Background(), withBase)
	require.NoError(t, err)
	assert.Equal(t, []mirror.RawFile{{Filename: "a.md", Status: "modified", SHA: "s1"}}, files)
}

func TestChangedFiles_CompareReadsOnePage(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/compare/base...head", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Link", `<http://`+r.Host+`/repos/octo/site/compare/base...head?page=2>; rel="next"`)
		fmt.Fprint(w, `{"status":"ahead","files":[{"filename":"a.md","status":"modified","sha":"s1"}]}`)
	})

	withBase := commit
	withBase.BaseSHA = "base"
	files, err := newTestAdapter(t, mux).ChangedFiles(context.Background(), withBase)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, 1, calls)
}

func TestChangedFiles_CompareAtCapWarns(t *testing.T) {
	var body strings.Builder
	body.WriteString(`{"status":"ahead","files":[`)
	for i := range 300 {
		if i > 0 {
			body.WriteString(",")
		}
		fmt.Fprintf(&body, `{"filename":"f%d.md","status":"added","sha":"s%d"}`, i, i)
	}
	body.WriteString(`]}`)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/compare/base...head", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body.String())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	gh := gogithub.NewClient(nil)
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = u

	var logs bytes.Buffer
	a := ghadapter.New(gh, ghadapter.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	withBase := commit
	withBase.BaseSHA = "base"
	files, err := a.ChangedFiles(context.Background(), withBase)
	require.NoError(t, err)
	assert.Len(t, files, 300)
	assert.Contains(t, logs.String(), "compare file list truncated")
	assert.Contains(t, logs.String(), "files=300")
}

func TestChangedFiles_Error(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/commits/head", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"No commit found"}`, http.StatusNotFound)
	})

	_, err := newTestAdapter(t, mux).ChangedFiles(context.Background(), commit)
	assert.ErrorContains(t, err, "get commit octo/site@head")
}

// ─── Fetch ────────────────────────────────────────────────────────────────────

func TestFetch_BlobRaw(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/git/blobs/s1", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "raw")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	data, err := newTestAdapter(t, mux).Fetch(context.Background(), commit,
		mirror.ChangeRecord{Path: "logo.png", Kind: mirror.ChangeAdded, ContentRef: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestFetch_ContentsAtCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/contents/docs/a.md", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "head", r.URL.Query().Get("ref"))
		fmt.Fprintf(w, `{"type":"file","path":"docs/a.md","encoding":"base64","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte("# hello")))
	})

	data, err := newTestAdapter(t, mux).Fetch(context.Background(), commit,
		mirror.ChangeRecord{Path: "docs/a.md", Kind: mirror.ChangeModified})
	require.NoError(t, err)
	assert.Equal(t, "# hello", string(data))
}

func TestFetch_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/git/blobs/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := newTestAdapter(t, mux).Fetch(context.Background(), commit,
		mirror.ChangeRecord{Path: "a.md", Kind: mirror.ChangeAdded, ContentRef: "missing"})
	require.Error(t, err)

	var ghErr *gogithub.ErrorResponse
	assert.ErrorAs(t, err, &ghErr)
}

// ─── Archive ──────────────────────────────────────────────────────────────────

func TestArchive_FollowsDownloadLocation(t *testing.T) {
	tarball := []byte{0x1f, 0x8b, 0x08, 0x00}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/tarball/head", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/codeload/octo/site/tar.gz/head?token=t1")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("GET /codeload/octo/site/tar.gz/head", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t1", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/x-gzip")
		_, _ = w.Write(tarball)
	})

	data, err := newTestAdapter(t, mux).Archive(context.Background(), commit)
	require.NoError(t, err)
	assert.Equal(t, tarball, data)
}

func TestArchive_DownloadFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/tarball/head", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/codeload/gone")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("GET /codeload/gone", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	_, err := newTestAdapter(t, mux).Archive(context.Background(), commit)
	assert.ErrorContains(t, err, "download archive octo/site@head")
}

func TestArchive_LinkFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/site/tarball/head", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := newTestAdapter(t, mux).Archive(context.Background(), commit)
	assert.ErrorContains(t, err, "archive link octo/site@head")
}

// ─── InMem ────────────────────────────────────────────────────────────────────

func TestInMem(t *testing.T) {
	m := ghadapter.NewInMem()
	m.SetCommit("octo", "site", "head", mirror.RawFile{Filename: "a.md", Status: "added", SHA: "s1"})
	m.SetBlob("s1", "hello")

	files, err := m.ChangedFiles(context.Background(), commit)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := m.Fetch(context.Background(), commit, mirror.ChangeRecord{Path: "a.md", ContentRef: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = m.ChangedFiles(context.Background(), mirror.CommitContext{Owner: "octo", Repo: "site", CommitSHA: "nope"})
	assert.Error(t, err)

	_, err = m.Archive(context.Background(), commit)
	assert.ErrorContains(t, err, "archive not found")
	m.SetArchive("octo", "site", "head", []byte("tgz"))
	data, err = m.Archive(context.Background(), commit)
	require.NoError(t, err)
	assert.Equal(t, "tgz", string(data))

	boom := errors.New("boom")
	m.FailFetch("a.md", boom)
	_, err = m.Fetch(context.Background(), commit, mirror.ChangeRecord{Path: "a.md", ContentRef: "s1"})
	assert.ErrorIs(t, err, boom)
}

func TestInMem_DelayHonoursContext(t *testing.T) {
	m := ghadapter.NewInMem()
	m.SetBlob("s1", "hello")
	m.DelayFetch("a.md", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Fetch(ctx, commit, mirror.ChangeRecord{Path: "a.md", ContentRef: "s1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

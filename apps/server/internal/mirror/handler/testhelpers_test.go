package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
	ghadapter "github.com/tilsley/s3mirror/apps/server/internal/mirror/adapters/github"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/adapters/objectstore"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/credentials"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/handler"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/store"
	"github.com/tilsley/s3mirror/apps/server/internal/platform/validation"
	"github.com/tilsley/s3mirror/schemas"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	owner = "octo"
	repo  = "site"
	sha   = "abc1234"
)

// ─── Test server builder ──────────────────────────────────────────────────────

type testServer struct {
	router *gin.Engine
	source *ghadapter.InMem
	fs     billy.Filesystem
	runs   *store.MemoryRunStore
	svc    *mirror.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return buildServer(t, handler.Config{}, false)
}

func newTestServerWithSecret(t *testing.T, secret string) *testServer {
	t.Helper()
	return buildServer(t, handler.Config{WebhookSecret: secret}, false)
}

func newTestServerWithValidation(t *testing.T) *testServer {
	t.Helper()
	return buildServer(t, handler.Config{}, true)
}

func buildServer(t *testing.T, cfg handler.Config, validate bool) *testServer {
	t.Helper()
	runs, err := store.NewMemoryRunStore(store.DefaultMemoryRuns)
	require.NoError(t, err)

	ts := &testServer{
		source: ghadapter.NewInMem(),
		fs:     memfs.New(),
		runs:   runs,
	}
	ts.source.SetCommit(owner, repo, sha,
		mirror.RawFile{Filename: "index.html", Status: "added", SHA: "b1"},
		mirror.RawFile{Filename: "docs/a.md", Status: "modified", SHA: "b2"},
	)
	ts.source.SetBlob("b1", "<h1>hi</h1>")
	ts.source.SetBlob("b2", "# a")

	log := slog.New(slog.DiscardHandler)
	engine := mirror.NewEngine(ts.source, objectstore.NewFSGateway(ts.fs), mirror.EngineConfig{Concurrency: 4}, log)
	ts.svc = mirror.NewService(ts.source, engine, credentials.Static("ghp_test"), log, mirror.WithRunStore(runs))

	r := gin.New()
	if validate {
		mw, err := validation.New(schemas.OpenAPISpec)
		require.NoError(t, err)
		r.Use(mw)
	}
	handler.RegisterRoutes(r, ts.svc, runs, cfg, log)
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	return ts.doRaw(method, path, buf.Bytes(), map[string]string{"Content-Type": "application/json"})
}

func (ts *testServer) doRaw(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) file(t *testing.T, name string) string {
	t.Helper()
	data, err := util.ReadFile(ts.fs, name)
	require.NoError(t, err)
	return string(data)
}

func decodeRun(t *testing.T, w *httptest.ResponseRecorder) handler.RunResponse {
	t.Helper()
	var resp handler.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error, body.Kind
}

func pushPayload(after string) []byte {
	return []byte(`{
		"ref": "refs/heads/main",
		"before": "0000000000000000000000000000000000000000",
		"after": "` + after + `",
		"repository": {"name": "site", "full_name": "octo/site", "owner": {"login": "octo"}}
	}`)
}

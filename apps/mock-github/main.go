package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tilsley/s3mirror/pkg/logging"
)

const (
	defaultPerPage = 30
	compareFileCap = 300
)

// CommitRequest is the body of the mock-only POST /repos/:owner/:repo/commits.
// A null file value deletes the path.
type CommitRequest struct {
	Message string             `json:"message" binding:"required"`
	Files   map[string]*string `json:"files"   binding:"required"`
}

type webhookConfig struct {
	url    string
	secret string
}

func main() {
	log := logging.New()
	s := newRepoStore()

	seedRepos(s)
	log.Info("seeded repos", "repos", len(s.heads))

	hook := webhookConfig{
		url:    os.Getenv("WEBHOOK_URL"),
		secret: os.Getenv("WEBHOOK_SECRET"),
	}
	if hook.url == "" {
		hook.url = "http://localhost:8080/webhooks/github"
	}

	r := gin.Default()
	registerHTMLRoutes(r, s)
	registerAPIRoutes(r, s, log, hook)

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	log.Info("mock-github starting", "port", port, "webhookURL", hook.url)
	if err := r.Run(":" + port); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func registerHTMLRoutes(r *gin.Engine, s *repoStore) {
	r.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, renderDashboard(s.history()))
	})
}

func registerAPIRoutes(r *gin.Engine, s *repoStore, log *slog.Logger, hook webhookConfig) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Mock-only: create a commit on the default branch and send its push webhook.
	r.POST("/repos/:owner/:repo/commits", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		var req CommitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		commit := s.commit(owner, repo, req.Message, req.Files)
		log.Info("commit created", "owner", owner, "repo", repo, "sha", commit.SHA, "files", len(req.Files))
		go sendPush(log, hook, owner, repo, commit)
		c.JSON(http.StatusCreated, gin.H{"sha": commit.SHA, "parent": commit.Parent})
	})

	// GET /repos/:owner/:repo/commits/:sha with the commit's own file list,
	// paginated like GitHub.
	r.GET("/repos/:owner/:repo/commits/:sha", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		commit, err := s.get(owner, repo, c.Param("sha"))
		if err != nil {
			notFound(c, err)
			return
		}
		files := paginate(c, s.changes(owner, repo, nil, commit))
		c.JSON(http.StatusOK, gin.H{
			"sha":     commit.SHA,
			"parents": parents(commit),
			"commit":  gin.H{"message": commit.Message},
			"files":   files,
		})
	})

	r.GET("/repos/:owner/:repo/compare/:basehead", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		baseRef, headRef, ok := strings.Cut(c.Param("basehead"), "...")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
			return
		}
		base, err := s.get(owner, repo, baseRef)
		if err != nil {
			notFound(c, err)
			return
		}
		head, err := s.get(owner, repo, headRef)
		if err != nil {
			notFound(c, err)
			return
		}
		// GitHub pages compare by commit; the file list is whole and capped.
		files := s.changes(owner, repo, base, head)
		if len(files) > compareFileCap {
			files = files[:compareFileCap]
		}
		c.JSON(http.StatusOK, gin.H{
			"status":            "ahead",
			"base_commit":       gin.H{"sha": base.SHA},
			"merge_base_commit": gin.H{"sha": base.SHA},
			"files":             files,
		})
	})

	// Blob endpoint: raw bytes for the raw media type, base64 JSON otherwise.
	r.GET("/repos/:owner/:repo/git/blobs/:sha", func(c *gin.Context) {
		content, ok := s.blob(c.Param("sha"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
			return
		}
		if strings.Contains(c.GetHeader("Accept"), "raw") {
			c.Data(http.StatusOK, "application/octet-stream", content)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sha":      c.Param("sha"),
			"size":     len(content),
			"content":  base64.StdEncoding.EncodeToString(content),
			"encoding": "base64",
		})
	})

	// Archive link: redirects to a download location like GitHub's codeload.
	r.GET("/repos/:owner/:repo/tarball/:ref", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		commit, err := s.get(owner, repo, c.Param("ref"))
		if err != nil {
			notFound(c, err)
			return
		}
		loc := fmt.Sprintf("%s://%s/codeload/%s/%s/tar.gz/%s", scheme(c), c.Request.Host, owner, repo, commit.SHA)
		c.Redirect(http.StatusFound, loc)
	})

	r.GET("/codeload/:owner/:repo/tar.gz/:sha", func(c *gin.Context) {
		data, err := s.tarball(c.Param("owner"), c.Param("repo"), c.Param("sha"))
		if err != nil {
			notFound(c, err)
			return
		}
		c.Data(http.StatusOK, "application/x-gzip", data)
	})

	r.GET("/repos/:owner/:repo/contents/*path", func(c *gin.Context) {
		owner, repo := c.Param("owner"), c.Param("repo")
		path := strings.TrimPrefix(c.Param("path"), "/")
		ref := c.DefaultQuery("ref", "HEAD")

		commit, err := s.get(owner, repo, ref)
		if err != nil {
			notFound(c, err)
			return
		}
		blob, ok := commit.Tree[path]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"message": fmt.Sprintf("path %q not found in %s/%s@%s", path, owner, repo, ref),
			})
			return
		}
		content, _ := s.blob(blob)
		c.JSON(http.StatusOK, gin.H{
			"type":     "file",
			"path":     path,
			"sha":      blob,
			"size":     len(content),
			"content":  base64.StdEncoding.EncodeToString(content),
			"encoding": "base64",
		})
	})
}

func scheme(c *gin.Context) string {
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

func notFound(c *gin.Context, err error) {
	status := http.StatusNotFound
	if !errors.Is(err, errRepoNotFound) && !errors.Is(err, errCommitNotFound) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func parents(c *Commit) []gin.H {
	if c.Parent == "" {
		return []gin.H{}
	}
	return []gin.H{{"sha": c.Parent}}
}

// paginate slices files by the page and per_page query parameters and sets a
// Link header when more pages follow.
func paginate(c *gin.Context, files []FileChange) []FileChange {
	perPage := defaultPerPage
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil && n > 0 && n <= 100 {
		perPage = n
	}
	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}

	start := min((page-1)*perPage, len(files))
	end := min(start+perPage, len(files))
	if end < len(files) {
		next := *c.Request.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		q.Set("per_page", strconv.Itoa(perPage))
		next.RawQuery = q.Encode()
		c.Header("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, c.Request.Host, next.RequestURI()))
	}
	return files[start:end]
}

// sendPush POSTs a GitHub-shaped push webhook for commit, signed when a
// secret is configured.
func sendPush(log *slog.Logger, hook webhookConfig, owner, repo string, commit *Commit) {
	before := commit.Parent
	if before == "" {
		before = strings.Repeat("0", 40)
	}
	payload := map[string]any{
		"ref":    "refs/heads/main",
		"before": before,
		"after":  commit.SHA,
		"repository": map[string]any{
			"name":      repo,
			"full_name": owner + "/" + repo,
			"owner":     map[string]any{"login": owner},
		},
		"head_commit": map[string]any{
			"id":      commit.SHA,
			"message": commit.Message,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal webhook", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.url, bytes.NewReader(body))
	if err != nil {
		log.Error("failed to build webhook request", "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-GitHub-Event", "push")
	httpReq.Header.Set("X-GitHub-Delivery", uuid.New().String())
	if hook.secret != "" {
		mac := hmac.New(sha256.New, []byte(hook.secret))
		mac.Write(body)
		httpReq.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		log.Error("failed to send webhook", "error", err, "url", hook.url)
		return
	}
	defer func() { //nolint:errcheck // response body close errors are non-actionable after reading
		_ = resp.Body.Close()
	}()

	log.Info("webhook sent", "url", hook.url, "sha", commit.SHA, "status", resp.StatusCode)
}

// --- HTML ---

func renderDashboard(history map[string][]*Commit) string {
	repos := make([]string, 0, len(history))
	for key := range history {
		repos = append(repos, key)
	}
	sort.Strings(repos)

	var sb strings.Builder
	sb.WriteString(`<!doctype html><html><head><title>mock-github</title>
<style>body{font-family:sans-serif;margin:2rem}td{padding:.2rem .8rem}code{font-size:.9em}</style>
</head><body><h1>mock-github</h1>`)
	for _, key := range repos {
		fmt.Fprintf(&sb, "<h2>%s</h2><table>", html.EscapeString(key))
		for _, c := range history[key] {
			fmt.Fprintf(&sb, "<tr><td><code>%s</code></td><td>%s</td><td>%d files</td><td>%s</td></tr>",
				c.SHA[:7], html.EscapeString(c.Message), len(c.Tree), c.Time.Format(time.RFC3339))
		}
		sb.WriteString("</table>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

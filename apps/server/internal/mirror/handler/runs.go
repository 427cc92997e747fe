package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// ReconcileRequest is the body of POST /reconcile.
type ReconcileRequest struct {
	Owner string   `json:"owner"`
	Repo  string   `json:"repo"`
	SHA   string   `json:"sha"`
	Base  string   `json:"base,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// ReconcileCommit handles POST /reconcile: mirror a commit on demand,
// optionally restricted to a subset of its paths.
func (h *Handler) ReconcileCommit(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": mirror.KindMalformedEvent})
		return
	}
	if req.Owner == "" || req.Repo == "" || req.SHA == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner, repo and sha are required", "kind": mirror.KindMalformedEvent})
		return
	}

	commit := mirror.CommitContext{Owner: req.Owner, Repo: req.Repo, CommitSHA: req.SHA, BaseSHA: req.Base}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		run *mirror.Run
		err error
	)
	if len(req.Paths) > 0 {
		run, err = h.svc.Replay(ctx, commit, req.Paths, "")
	} else {
		run, err = h.svc.ReconcileCommit(ctx, commit)
	}
	h.writeResult(c, run, err)
}

// ListRuns handles GET /runs?limit=N, newest first.
func (h *Handler) ListRuns(c *gin.Context) {
	limit := mirror.DefaultRunListLimit
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= mirror.MaxRunListLimit {
			limit = n
		}
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, NewRunResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// GetRun handles GET /runs/:id.
func (h *Handler) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewRunResponse(run))
}

// RetryRun handles POST /runs/:id/retry: replay the failed paths of a
// recorded run against the same commit.
func (h *Handler) RetryRun(c *gin.Context) {
	prev, ok := h.lookup(c)
	if !ok {
		return
	}
	if !prev.Outcome.Partial() {
		c.JSON(http.StatusConflict, gin.H{"error": "run has no failed paths"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	run, err := h.svc.Replay(ctx, prev.Commit, prev.Outcome.FailedPaths(), prev.ID)
	h.writeResult(c, run, err)
}

func (h *Handler) lookup(c *gin.Context) (*mirror.Run, bool) {
	id := c.Param("id")
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return nil, false
		}
		h.log.Error("get run failed", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return run, true
}

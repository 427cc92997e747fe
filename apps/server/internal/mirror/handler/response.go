package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// RunResponse is the JSON rendering of a mirror.Run.
type RunResponse struct {
	RunID      string                `json:"runId,omitempty" yaml:"runId,omitempty"`
	DeliveryID string                `json:"deliveryId,omitempty" yaml:"deliveryId,omitempty"`
	Trigger    string                `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Status     mirror.Status         `json:"status" yaml:"status"`
	Reason     string                `json:"reason,omitempty" yaml:"reason,omitempty"`
	RetryOf    string                `json:"retryOf,omitempty" yaml:"retryOf,omitempty"`
	Commit     *mirror.CommitContext `json:"commit,omitempty" yaml:"commit,omitempty"`
	Succeeded  []string              `json:"succeeded" yaml:"succeeded"`
	Failed     []FailedPath          `json:"failed" yaml:"failed"`
	StartedAt  time.Time             `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt" yaml:"finishedAt"`
}

// FailedPath is one entry of RunResponse.Failed.
type FailedPath struct {
	Path  string           `json:"path" yaml:"path"`
	Kind  mirror.ErrorKind `json:"kind" yaml:"kind"`
	Error string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewRunResponse renders run.
func NewRunResponse(run *mirror.Run) RunResponse {
	resp := RunResponse{
		RunID:      run.ID,
		DeliveryID: run.DeliveryID,
		Trigger:    run.Trigger,
		Status:     run.Status,
		Reason:     run.Reason,
		RetryOf:    run.RetryOf,
		Succeeded:  []string{},
		Failed:     []FailedPath{},
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Commit != (mirror.CommitContext{}) {
		commit := run.Commit
		resp.Commit = &commit
	}
	if run.Outcome != nil {
		resp.Succeeded = append(resp.Succeeded, run.Outcome.Succeeded...)
		for _, p := range run.Outcome.FailedPaths() {
			recErr := run.Outcome.Failed[p]
			fp := FailedPath{Path: p, Kind: recErr.Kind}
			if recErr.Err != nil {
				fp.Error = recErr.Err.Error()
			}
			resp.Failed = append(resp.Failed, fp)
		}
	}
	return resp
}

// statusFor maps a run-fatal error kind to an HTTP status.
func statusFor(kind mirror.ErrorKind) int {
	switch kind {
	case mirror.KindMalformedEvent:
		return http.StatusBadRequest
	case mirror.KindEmptyChangeSet, mirror.KindUnrecognizedChangeStatus:
		return http.StatusUnprocessableEntity
	case mirror.KindChangeSetUnavailable:
		return http.StatusBadGateway
	case mirror.KindCredentialUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeRunError(c *gin.Context, err error) {
	kind := mirror.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.log.Error("reconciliation failed", "kind", kind, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func (h *Handler) writeResult(c *gin.Context, run *mirror.Run, err error) {
	if err != nil {
		h.writeRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRunResponse(run))
}

func isNotFound(err error) bool {
	var nf mirror.RunNotFoundError
	return errors.As(err, &nf)
}

package mirror

import (
	"sort"
	"strings"
	"time"
)

// ChangeKind is the normalized status of one file within a commit.
type ChangeKind string

// Change kinds produced by BuildChangeSet.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRenamed  ChangeKind = "renamed"
)

// ChangeRecord is one changed file of a commit.
// PreviousPath is set iff Kind is ChangeRenamed; ContentRef is empty for ChangeRemoved.
type ChangeRecord struct {
	Path         string
	PreviousPath string
	Kind         ChangeKind
	ContentRef   string // blob SHA
}

// RawFile is a file entry as reported by the source repository's commit metadata.
type RawFile struct {
	Filename         string
	PreviousFilename string
	Status           string
	SHA              string
}

// CommitContext identifies the commit a reconciliation run mirrors.
// BaseSHA is optional; when set the change set is the diff base...CommitSHA
// instead of the single commit's own file list.
type CommitContext struct {
	Owner     string `json:"owner" yaml:"owner"`
	Repo      string `json:"repo" yaml:"repo"`
	CommitSHA string `json:"commitSha" yaml:"commitSha"`
	BaseSHA   string `json:"baseSha,omitempty" yaml:"baseSha,omitempty"`
}

// FullName returns "owner/repo".
func (c CommitContext) FullName() string {
	return c.Owner + "/" + c.Repo
}

// Event is an inbound change notification: a header-like attribute map and a JSON body.
type Event struct {
	Attributes map[string]string
	Body       []byte
}

// Attribute names read from an Event.
const (
	EventTypeAttr = "X-GitHub-Event"
	DeliveryAttr  = "X-GitHub-Delivery"
)

// Attr returns the attribute value for name, matching keys case-insensitively.
func (e Event) Attr(name string) string {
	if v, ok := e.Attributes[name]; ok {
		return v
	}
	for k, v := range e.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Outcome is the accumulated result of a reconciliation run.
// Succeeded is sorted; every touched path appears either there or in Failed.
type Outcome struct {
	Succeeded []string
	Failed    map[string]*RecordError
}

// Partial reports whether at least one record failed.
func (o *Outcome) Partial() bool {
	return o != nil && len(o.Failed) > 0
}

// add folds the result for p into o.
func (o *Outcome) add(p string, err *RecordError) {
	if err != nil {
		if o.Failed == nil {
			o.Failed = make(map[string]*RecordError)
		}
		o.Failed[p] = err
		return
	}
	o.Succeeded = append(o.Succeeded, p)
	sort.Strings(o.Succeeded)
}

// FailedPaths returns the failed paths in sorted order.
func (o *Outcome) FailedPaths() []string {
	if o == nil {
		return nil
	}
	paths := make([]string, 0, len(o.Failed))
	for p := range o.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Status is the terminal state of a run as reported to callers.
type Status string

// Run statuses.
const (
	StatusSkipped   Status = "skipped"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
)

// Run is the record of one reconciliation, returned to callers and kept by a RunStore.
type Run struct {
	ID         string
	DeliveryID string
	Trigger    string
	Commit     CommitContext
	Status     Status
	Reason     string // why a run was skipped
	RetryOf    string // ID of the run whose failed paths this run replayed
	Outcome    *Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

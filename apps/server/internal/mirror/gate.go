package mirror

import (
	"errors"
	"fmt"
	"strings"

	gogithub "github.com/google/go-github/v75/github"
)

// Trigger is an in-scope change notification. The concrete types are
// PushTrigger and PullRequestTrigger.
type Trigger interface {
	Commit() CommitContext
	Name() string
	trigger()
}

// PushTrigger is a push to a branch or tag.
type PushTrigger struct {
	Ref     string
	Context CommitContext
}

// Commit implements Trigger.
func (t PushTrigger) Commit() CommitContext { return t.Context }

// Name implements Trigger.
func (t PushTrigger) Name() string { return "push" }

func (PushTrigger) trigger() {}

// PullRequestTrigger is a newly opened pull request.
type PullRequestTrigger struct {
	Number  int
	Context CommitContext
}

// Commit implements Trigger.
func (t PullRequestTrigger) Commit() CommitContext { return t.Context }

// Name implements Trigger.
func (t PullRequestTrigger) Name() string { return "pull_request" }

func (PullRequestTrigger) trigger() {}

// Accept decides whether ev is in scope. Out-of-scope events return
// (nil, false, nil); an in-scope event whose payload cannot be decoded returns
// a RunError of kind KindMalformedEvent.
func Accept(ev Event) (Trigger, bool, error) {
	eventType := ev.Attr(EventTypeAttr)
	if eventType != "push" && eventType != "pull_request" {
		return nil, false, nil
	}

	payload, err := gogithub.ParseWebHook(eventType, ev.Body)
	if err != nil {
		return nil, false, malformed(fmt.Errorf("decode %s payload: %w", eventType, err))
	}

	switch e := payload.(type) {
	case *gogithub.PushEvent:
		return acceptPush(e)
	case *gogithub.PullRequestEvent:
		return acceptPullRequest(e)
	default:
		return nil, false, nil
	}
}

func acceptPush(e *gogithub.PushEvent) (Trigger, bool, error) {
	if e.GetDeleted() || isZeroSHA(e.GetAfter()) {
		return nil, false, nil
	}
	repo := e.GetRepo()
	owner := repo.GetOwner().GetLogin()
	if owner == "" {
		owner = repo.GetOwner().GetName()
	}
	commit := CommitContext{
		Owner:     ownerOf(owner, repo.GetFullName()),
		Repo:      repo.GetName(),
		CommitSHA: e.GetAfter(),
	}
	if before := e.GetBefore(); !isZeroSHA(before) {
		commit.BaseSHA = before
	}
	if err := validate(commit); err != nil {
		return nil, false, err
	}
	return PushTrigger{Ref: e.GetRef(), Context: commit}, true, nil
}

func acceptPullRequest(e *gogithub.PullRequestEvent) (Trigger, bool, error) {
	if e.GetAction() != "opened" {
		return nil, false, nil
	}
	repo := e.GetRepo()
	pr := e.GetPullRequest()
	commit := CommitContext{
		Owner:     ownerOf(repo.GetOwner().GetLogin(), repo.GetFullName()),
		Repo:      repo.GetName(),
		CommitSHA: pr.GetHead().GetSHA(),
		BaseSHA:   pr.GetBase().GetSHA(),
	}
	if err := validate(commit); err != nil {
		return nil, false, err
	}
	return PullRequestTrigger{Number: e.GetNumber(), Context: commit}, true, nil
}

// ownerOf falls back to the "owner/" prefix of the repository full name.
func ownerOf(owner, fullName string) string {
	if owner != "" {
		return owner
	}
	if i := strings.Index(fullName, "/"); i > 0 {
		return fullName[:i]
	}
	return ""
}

func validate(c CommitContext) error {
	switch {
	case c.Owner == "":
		return malformed(errors.New("repository owner missing"))
	case c.Repo == "":
		return malformed(errors.New("repository name missing"))
	case c.CommitSHA == "":
		return malformed(errors.New("commit sha missing"))
	}
	return nil
}

func malformed(err error) error {
	return &RunError{Kind: KindMalformedEvent, Err: err}
}

func isZeroSHA(sha string) bool {
	return sha != "" && strings.Trim(sha, "0") == ""
}

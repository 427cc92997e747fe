package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

const zeroSHA = "0000000000000000000000000000000000000000"

func pushBody(before, after string) []byte {
	return []byte(`{
		"ref": "refs/heads/main",
		"before": "` + before + `",
		"after": "` + after + `",
		"repository": {"name": "site", "full_name": "octo/site", "owner": {"login": "octo"}}
	}`)
}

func prBody(action string) []byte {
	return []byte(`{
		"action": "` + action + `",
		"number": 42,
		"pull_request": {"head": {"sha": "headsha"}, "base": {"sha": "basesha"}},
		"repository": {"name": "site", "full_name": "octo/site", "owner": {"login": "octo"}}
	}`)
}

func event(eventType string, body []byte) mirror.Event {
	return mirror.Event{
		Attributes: map[string]string{"X-GitHub-Event": eventType},
		Body:       body,
	}
}

func TestAccept_Push(t *testing.T) {
	trigger, ok, err := mirror.Accept(event("push", pushBody("aaa", "bbb")))
	require.NoError(t, err)
	require.True(t, ok)

	push, isPush := trigger.(mirror.PushTrigger)
	require.True(t, isPush)
	assert.Equal(t, "refs/heads/main", push.Ref)
	assert.Equal(t, "push", trigger.Name())
	assert.Equal(t, mirror.CommitContext{Owner: "octo", Repo: "site", CommitSHA: "bbb", BaseSHA: "aaa"}, trigger.Commit())
}

func TestAccept_PushFromNewBranchHasNoBase(t *testing.T) {
	trigger, ok, err := mirror.Accept(event("push", pushBody(zeroSHA, "bbb")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, trigger.Commit().BaseSHA)
}

func TestAccept_BranchDeletionIsSkipped(t *testing.T) {
	trigger, ok, err := mirror.Accept(event("push", pushBody("aaa", zeroSHA)))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, trigger)
}

func TestAccept_PullRequestOpened(t *testing.T) {
	trigger, ok, err := mirror.Accept(event("pull_request", prBody("opened")))
	require.NoError(t, err)
	require.True(t, ok)

	pr, isPR := trigger.(mirror.PullRequestTrigger)
	require.True(t, isPR)
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, mirror.CommitContext{Owner: "octo", Repo: "site", CommitSHA: "headsha", BaseSHA: "basesha"}, trigger.Commit())
}

func TestAccept_PullRequestOtherActionsSkipped(t *testing.T) {
	for _, action := range []string{"closed", "synchronize", "edited", "reopened"} {
		t.Run(action, func(t *testing.T) {
			_, ok, err := mirror.Accept(event("pull_request", prBody(action)))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestAccept_OutOfScopeEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   mirror.Event
	}{
		{"no attributes", mirror.Event{Body: pushBody("a", "b")}},
		{"ping", event("ping", []byte(`{"zen":"hi"}`))},
		{"issues", event("issues", []byte(`{"action":"opened"}`))},
		{"unknown body ignored", event("release", []byte(`not json`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, ok, err := mirror.Accept(tt.ev)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, trigger)
		})
	}
}

func TestAccept_AttributeNameIsCaseInsensitive(t *testing.T) {
	ev := mirror.Event{
		Attributes: map[string]string{"X-Github-Event": "push"},
		Body:       pushBody("aaa", "bbb"),
	}
	_, ok, err := mirror.Accept(ev)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccept_OwnerFallsBackToFullName(t *testing.T) {
	body := []byte(`{
		"after": "bbb",
		"repository": {"name": "site", "full_name": "octo/site"}
	}`)
	trigger, ok, err := mirror.Accept(event("push", body))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "octo", trigger.Commit().Owner)
}

func TestAccept_Malformed(t *testing.T) {
	tests := []struct {
		name string
		ev   mirror.Event
	}{
		{"invalid json", event("push", []byte(`{"after":`))},
		{"missing repository", event("push", []byte(`{"after":"bbb"}`))},
		{"missing head sha", event("pull_request", []byte(`{
			"action": "opened",
			"pull_request": {"head": {}},
			"repository": {"name": "site", "owner": {"login": "octo"}}
		}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := mirror.Accept(tt.ev)
			assert.False(t, ok)
			assert.Equal(t, mirror.KindMalformedEvent, mirror.KindOf(err))
		})
	}
}

// Package deploy decides when a GitHub push asks for a redeploy and runs
// the delayed restart.
package deploy

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
)

// ParsePush decodes a raw push webhook body.
func ParsePush(body []byte) (*github.PushEvent, error) {
	event, err := github.ParseWebHook("push", body)
	if err != nil {
		return nil, fmt.Errorf("invalid push payload: %w", err)
	}

	push, ok := event.(*github.PushEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected event type %T", event)
	}
	return push, nil
}

// ShouldDeploy reports whether any commit in the push, or its head commit,
// carries marker in its message.
func ShouldDeploy(event *github.PushEvent, marker string) bool {
	return len(MarkedCommits(event, marker)) > 0
}

// MarkedCommits returns the commits whose message contains marker. The head
// commit is included when the commit list is empty.
func MarkedCommits(event *github.PushEvent, marker string) []*github.HeadCommit {
	if event == nil || marker == "" {
		return nil
	}

	commits := event.Commits
	if len(commits) == 0 && event.HeadCommit != nil {
		commits = []*github.HeadCommit{event.HeadCommit}
	}

	var marked []*github.HeadCommit
	for _, c := range commits {
		if c != nil && strings.Contains(c.GetMessage(), marker) {
			marked = append(marked, c)
		}
	}

	if len(marked) == 0 && event.HeadCommit != nil && strings.Contains(event.HeadCommit.GetMessage(), marker) {
		marked = append(marked, event.HeadCommit)
	}

	return marked
}

// ShortSHA returns the first seven characters of a commit id.
func ShortSHA(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

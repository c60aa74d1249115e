package events

import (
	"github.com/mergifyio/engine/pkg/github"
)

// SlimEvent is the reduced projection of an event kept on the queue: the
// sender plus the per-type minimum needed to later re-derive the
// affected pull requests. It has no lifecycle beyond the queue message.
type SlimEvent struct {
	Sender     *github.User `json:"sender"`
	Comment    *Comment     `json:"comment,omitempty"`
	CheckSuite *SlimCheck   `json:"check_suite,omitempty"`
	CheckRun   *SlimCheck   `json:"check_run,omitempty"`
	Action     string       `json:"action,omitempty"`
	Ref        string       `json:"ref,omitempty"`
	SHA        string       `json:"sha,omitempty"`
}

// SlimCheck keeps a check's head commit and pull-request summaries.
type SlimCheck struct {
	HeadSHA      string          `json:"head_sha"`
	PullRequests []SlimCheckPull `json:"pull_requests"`
}

// SlimCheckPull is the minimal pull-request summary of a check: number
// plus the base repository URL used to exclude fork-origin matches.
type SlimCheckPull struct {
	BaseRepoURL string `json:"base_repo_url"`
	Number      int    `json:"number"`
}

// slimEvent projects an event down to its SlimEvent for the given type.
// The projection is pure: the same event always yields the same slim
// payload.
func slimEvent(eventType string, ev *Event) *SlimEvent {
	slim := &SlimEvent{Sender: ev.Sender}

	switch eventType {
	case TypeStatus:
		// To find the PR from the commit hash later.
		slim.SHA = ev.SHA
	case TypeRefresh:
		// To find the PR from the commit hash or branch name later.
		slim.Action = ev.Action
		slim.Ref = ev.Ref
	case TypePush:
		slim.Ref = ev.Ref
	case TypeCheckSuite:
		slim.CheckSuite = slimCheck(ev.CheckSuite)
	case TypeCheckRun:
		slim.CheckRun = slimCheck(ev.CheckRun)
	case TypePullRequest:
		// For pull_request opened/synchronize/closed.
		slim.Action = ev.Action
	case TypeIssueComment:
		// For the command runner.
		slim.Comment = ev.Comment
	}

	return slim
}

func slimCheck(check *Check) *SlimCheck {
	if check == nil {
		return nil
	}
	slim := &SlimCheck{
		HeadSHA:      check.HeadSHA,
		PullRequests: make([]SlimCheckPull, 0, len(check.PullRequests)),
	}
	for _, pull := range check.PullRequests {
		slim.PullRequests = append(slim.PullRequests, SlimCheckPull{
			Number:      pull.Number,
			BaseRepoURL: pull.Base.Repo.URL,
		})
	}
	return slim
}

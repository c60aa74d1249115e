// Package events implements the event classification and dispatch
// pipeline: deciding whether each incoming webhook event is relevant,
// projecting it to a slim payload, routing it to the per-repository work
// queue, and later re-deriving the affected pull requests from it.
package events

import (
	"github.com/mergifyio/engine/pkg/github"
)

// Event type names as delivered by GitHub, plus the internally
// synthesized "refresh".
const (
	TypePullRequest              = "pull_request"
	TypePullRequestReview        = "pull_request_review"
	TypePullRequestReviewComment = "pull_request_review_comment"
	TypeIssueComment             = "issue_comment"
	TypePush                     = "push"
	TypeStatus                   = "status"
	TypeCheckSuite               = "check_suite"
	TypeCheckRun                 = "check_run"
	TypeRefresh                  = "refresh"
	TypeOrganization             = "organization"
	TypeMember                   = "member"
	TypeMembership               = "membership"
	TypeTeam                     = "team"
	TypeTeamAdd                  = "team_add"
)

// UserCreatedChecks is the external_id marker set on check runs created
// on behalf of a user rather than by the engine itself. Such check runs
// are dispatched even though they belong to our own integration.
const UserCreatedChecks = "user-created-checks"

// Event is an incoming webhook payload. It is a tagged union keyed by
// the event type delivered alongside it: each type reads only its own
// subset of fields. Immutable once received.
type Event struct {
	Repository   *github.Repository  `json:"repository,omitempty"`
	Organization *Organization       `json:"organization,omitempty"`
	Sender       *github.User        `json:"sender,omitempty"`
	PullRequest  *github.PullRequest `json:"pull_request,omitempty"`
	Issue        *Issue              `json:"issue,omitempty"`
	Comment      *Comment            `json:"comment,omitempty"`
	CheckSuite   *Check              `json:"check_suite,omitempty"`
	CheckRun     *Check              `json:"check_run,omitempty"`
	Member       *github.User        `json:"member,omitempty"`
	Action       string              `json:"action,omitempty"`
	Ref          string              `json:"ref,omitempty"`
	SHA          string              `json:"sha,omitempty"`
}

// Organization identifies the organization an event belongs to.
type Organization struct {
	Login string `json:"login"`
}

// Issue is the issue half of an issue_comment event; for comments on
// pull requests the issue number is the pull request number.
type Issue struct {
	Number int `json:"number"`
}

// Comment is an issue or review comment.
type Comment struct {
	User *github.User `json:"user,omitempty"`
	Body string       `json:"body"`
}

// App identifies the GitHub App that produced a check.
type App struct {
	ID int64 `json:"id"`
}

// Check is the shared shape of check_suite and check_run payloads.
type Check struct {
	HeadSHA      string      `json:"head_sha"`
	ExternalID   string      `json:"external_id,omitempty"`
	App          App         `json:"app"`
	PullRequests []CheckPull `json:"pull_requests"`
}

// CheckPull is a pull request referenced by a check. The base repository
// URL distinguishes pull requests of this installation from fork-origin
// ones that GitHub lists alongside them.
type CheckPull struct {
	Number int `json:"number"`
	Base   struct {
		Repo struct {
			URL string `json:"url"`
		} `json:"repo"`
	} `json:"base"`
}

package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/mergifyio/engine/pkg/github"
)

// RefreshActionUser marks a refresh requested by a user; internal
// callers may pass their own action names.
const RefreshActionUser = "user"

// SendRefresh synthesizes a refresh event for one pull request and runs
// it through the dispatcher, forcing the worker to re-evaluate the pull
// request. Refresh events are never ignored.
func SendRefresh(ctx context.Context, d *Dispatcher, pull *github.PullRequest, action string) (*Result, error) {
	if action == "" {
		action = RefreshActionUser
	}
	ev := &Event{
		Action:       action,
		Repository:   &pull.Base.Repo,
		PullRequest:  pull,
		Organization: &Organization{Login: pull.Base.Repo.Owner.Login},
		Sender:       &github.User{Login: "<internal>", Type: "User"},
	}
	return d.Dispatch(ctx, TypeRefresh, uuid.NewString(), ev)
}

package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Queue is the durable per-repository work queue the dispatcher pushes
// to. Push failures are the durability boundary: they propagate to the
// caller instead of being swallowed. pullNumber is 0 when the event is
// not tied to a single pull request.
type Queue interface {
	Push(ctx context.Context, owner, repo string, pullNumber int, eventType string, slim *SlimEvent) error
}

// SummaryCreator creates the initial status summary for a freshly opened
// or synchronized pull request. Best-effort: failures are logged, never
// retried from this layer.
type SummaryCreator interface {
	CreateInitialSummary(ctx context.Context, ev *Event) error
}

// CommandRunner parses a qualifying issue comment for slash commands.
// Best-effort and not persisted, so failures are never retried.
type CommandRunner interface {
	OnComment(ctx context.Context, ev *Event) error
}

// Result is the classifier's terminal outcome for one event: dispatched
// to the queue, or ignored with an externally observable reason.
type Result struct {
	EventType  string
	EventID    string
	Owner      string
	Repo       string
	Reason     string
	PullNumber int
	Ignored    bool
}

// Dispatcher classifies incoming webhook events and routes the relevant
// ones to the work queue.
type Dispatcher struct {
	queue     Queue
	perms     *PermissionCache
	summaries SummaryCreator
	commands  CommandRunner
	stats     statsd.ClientInterface
	logger    *slog.Logger
	transient func(error) bool
	botLogins []string
	appID     int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithStatsd sets the metering client.
func WithStatsd(client statsd.ClientInterface) DispatcherOption {
	return func(d *Dispatcher) { d.stats = client }
}

// WithPermissionCache sets the cache invalidated by org/team/member
// events.
func WithPermissionCache(cache *PermissionCache) DispatcherOption {
	return func(d *Dispatcher) { d.perms = cache }
}

// WithSummaryCreator enables the initial-summary side effect on
// pull_request opened/synchronize.
func WithSummaryCreator(s SummaryCreator) DispatcherOption {
	return func(d *Dispatcher) { d.summaries = s }
}

// WithCommandRunner enables slash-command parsing on qualifying issue
// comments.
func WithCommandRunner(r CommandRunner) DispatcherOption {
	return func(d *Dispatcher) { d.commands = r }
}

// WithAppID sets the engine's own GitHub App integration ID, used to
// ignore check runs the engine created itself.
func WithAppID(id int64) DispatcherOption {
	return func(d *Dispatcher) { d.appID = id }
}

// WithBotLogins sets the engine's own account logins, used to tag merges
// performed by the engine.
func WithBotLogins(logins []string) DispatcherOption {
	return func(d *Dispatcher) { d.botLogins = logins }
}

// WithTransientClassifier sets the policy deciding whether a best-effort
// side-effect failure is an expected/retryable condition (logged at
// debug) or a real one (logged at error).
func WithTransientClassifier(classify func(error) bool) DispatcherOption {
	return func(d *Dispatcher) { d.transient = classify }
}

// NewDispatcher creates a dispatcher pushing to the given queue.
func NewDispatcher(queue Queue, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:     queue,
		stats:     &statsd.NoOpClient{},
		logger:    slog.Default(),
		botLogins: []string{"mergify[bot]", "mergify-test[bot]"},
		transient: func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// classification is what a per-type handler derives from an event.
type classification struct {
	owner  string
	repo   string
	reason string
	pull   int
}

// handler is one entry of the per-event-type registry.
type handler func(ctx context.Context, d *Dispatcher, ev *Event) classification

// Dispatch classifies one event and, when relevant, pushes its slim
// projection to the queue. Re-running it on the same event always yields
// the same decision and the same projection. A queue push failure is
// returned as an error; an ignored event is a non-error outcome carried
// in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType, eventID string, ev *Event) (*Result, error) {
	d.meter(eventType, ev)

	var c classification
	if h, ok := handlers[eventType]; ok {
		c = h(ctx, d, ev)
	} else {
		c = classification{owner: "<unknown>", repo: "<unknown>", reason: "unexpected event_type"}
	}

	msgAction := "pushed to worker"
	if c.reason == "" {
		slim := slimEvent(eventType, ev)
		if err := d.queue.Push(ctx, c.owner, c.repo, c.pull, eventType, slim); err != nil {
			return nil, fmt.Errorf("pushing %s event to worker: %w", eventType, err)
		}
	} else {
		msgAction = "ignored: " + c.reason
	}

	sender := ""
	if ev.Sender != nil {
		sender = ev.Sender.Login
	}
	d.logger.InfoContext(ctx, "GithubApp event "+msgAction,
		"event_type", eventType,
		"event_id", eventID,
		"sender", sender,
		"gh_owner", c.owner,
		"gh_repo", c.repo)

	return &Result{
		EventType:  eventType,
		EventID:    eventID,
		Owner:      c.owner,
		Repo:       c.repo,
		PullNumber: c.pull,
		Ignored:    c.reason != "",
		Reason:     c.reason,
	}, nil
}

// handlers maps each event type to its classification logic. Always-
// ignored administrative events still run their cache-invalidation side
// effects before reporting their reason.
var handlers = map[string]handler{
	TypePullRequest: func(ctx context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
			pull:  ev.PullRequest.Number,
		}
		switch {
		case ev.Repository.Archived:
			c.reason = "repository archived"
		case ev.Action == "opened" || ev.Action == "synchronize":
			if d.summaries != nil {
				if err := d.summaries.CreateInitialSummary(ctx, ev); err != nil {
					d.logSideEffectFailure(ctx, "fail to create initial summary", err)
				}
			}
		}
		return c
	},

	TypeRefresh: func(_ context.Context, _ *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
		}
		if ev.PullRequest != nil {
			c.pull = ev.PullRequest.Number
		}
		return c
	},

	TypePullRequestReviewComment: func(_ context.Context, _ *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
			pull:  ev.PullRequest.Number,
		}
		if ev.Repository.Archived {
			c.reason = "repository archived"
		}
		return c
	},

	TypePullRequestReview: func(_ context.Context, _ *Dispatcher, ev *Event) classification {
		return classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
			pull:  ev.PullRequest.Number,
		}
	},

	TypeIssueComment: func(ctx context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
			pull:  ev.Issue.Number,
		}
		switch {
		case ev.Repository.Archived:
			c.reason = "repository archived"
		case ev.Action != "created":
			c.reason = fmt.Sprintf("comment has been %s", ev.Action)
		case !mentionsBot(ev.Comment.Body):
			c.reason = "comment is not for Mergify"
		default:
			// Nothing important may happen in this hook: the event is not
			// yet persisted, so this path is never retried.
			if d.commands != nil {
				if err := d.commands.OnComment(ctx, ev); err != nil {
					d.logSideEffectFailure(ctx, "command runner failed", err)
				}
			}
		}
		return c
	},

	TypeStatus: func(_ context.Context, _ *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
		}
		if ev.Repository.Archived {
			c.reason = "repository archived"
		}
		return c
	},

	TypePush: func(_ context.Context, _ *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
		}
		switch {
		case ev.Repository.Archived:
			c.reason = "repository archived"
		case !strings.HasPrefix(ev.Ref, "refs/heads/"):
			c.reason = "push on " + ev.Ref
		}
		return c
	},

	TypeCheckSuite: func(_ context.Context, _ *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
		}
		switch {
		case ev.Repository.Archived:
			c.reason = "repository archived"
		case ev.Action != "rerequested":
			c.reason = "check_suite/" + ev.Action
		}
		return c
	},

	TypeCheckRun: func(_ context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner: ev.Repository.Owner.Login,
			repo:  ev.Repository.Name,
		}
		switch {
		case ev.Repository.Archived:
			c.reason = "repository archived"
		case ev.CheckRun.App.ID == d.appID &&
			ev.Action != "rerequested" &&
			ev.CheckRun.ExternalID != UserCreatedChecks:
			c.reason = "mergify check_run"
		}
		return c
	},

	TypeOrganization: func(_ context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner:  ev.Organization.Login,
			reason: "organization event",
		}
		switch ev.Action {
		case "deleted", "member_added", "member_removed":
			if d.perms != nil {
				d.perms.ClearForOrg(ev.Organization.Login)
			}
		}
		return c
	},

	TypeMember: func(_ context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner:  ev.Repository.Owner.Login,
			repo:   ev.Repository.Name,
			reason: "member event",
		}
		if d.perms != nil && ev.Member != nil {
			d.perms.ClearForUser(ev.Repository.Owner.Login, ev.Repository.Name, ev.Member.Login)
		}
		return c
	},

	TypeMembership: func(_ context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner:  ev.Organization.Login,
			reason: "membership event",
		}
		if d.perms != nil {
			d.perms.ClearForOrg(ev.Organization.Login)
		}
		return c
	},

	TypeTeam: func(_ context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner:  ev.Organization.Login,
			reason: "team event",
		}
		switch ev.Action {
		case "edited", "added_to_repository", "removed_from_repository":
			if d.perms != nil {
				if ev.Repository != nil {
					d.perms.ClearForRepo(ev.Organization.Login, ev.Repository.Name)
				} else {
					d.perms.ClearForOrg(ev.Organization.Login)
				}
			}
		}
		return c
	},

	TypeTeamAdd: func(_ context.Context, d *Dispatcher, ev *Event) classification {
		c := classification{
			owner:  ev.Repository.Owner.Login,
			repo:   ev.Repository.Name,
			reason: "team_add event",
		}
		if d.perms != nil {
			d.perms.ClearForRepo(ev.Repository.Owner.Login, ev.Repository.Name)
		}
		return c
	},
}

// mentionsBot reports whether a comment addresses the engine.
func mentionsBot(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "@mergify ") || strings.Contains(lower, "@mergifyio ")
}

// meter counts the event, tagged by type and action, with an extra tag
// when one of our own bot accounts merged the pull request.
func (d *Dispatcher) meter(eventType string, ev *Event) {
	tags := []string{"event_type:" + eventType}

	if eventType == TypePullRequest && ev.PullRequest != nil {
		tags = append(tags, "action:"+ev.Action)
		if ev.Action == "closed" && ev.PullRequest.Merged &&
			ev.PullRequest.MergedBy != nil && contains(d.botLogins, ev.PullRequest.MergedBy.Login) {
			tags = append(tags, "by_mergify")
		}
	}

	if err := d.stats.Incr("github.events", tags, 1); err != nil {
		d.logger.Debug("failed to increment event counter", "error", err)
	}
}

// logSideEffectFailure logs a best-effort side-effect failure without
// escalating it: debug when the transient classifier recognizes it,
// error otherwise.
func (d *Dispatcher) logSideEffectFailure(ctx context.Context, msg string, err error) {
	if d.transient(err) {
		d.logger.DebugContext(ctx, msg, "error", err)
		return
	}
	d.logger.ErrorContext(ctx, msg, "error", err)
}

func contains(list []string, s string) bool {
	for _, elem := range list {
		if elem == s {
			return true
		}
	}
	return false
}

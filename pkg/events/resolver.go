package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mergifyio/engine/pkg/github"
)

// shaCacheExpiry bounds how long a sha→pull-number mapping stays cached.
// Multiple status/check events usually reference the same commit within
// a short window; the cache spares a linear scan per event.
const shaCacheExpiry = 60 * time.Second

// SHACache is the shared key-value store backing commit-hash resolution.
// Concurrent writers for the same key are idempotent (same sha, same
// pull number), so no locking is needed around Get/Set.
type SHACache interface {
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, pullNumber int, expiry time.Duration) error
}

// shaCacheKey builds the cache key for one commit of one repository.
func shaCacheKey(owner, repo, sha string) string {
	return fmt.Sprintf("sha~%s~%s~%s", owner, repo, sha)
}

// Resolver derives the pull requests affected by a queued event.
type Resolver struct {
	cache  SHACache
	logger *slog.Logger
	apiURL string
}

// NewResolver creates a resolver using the given SHA cache. apiURL is
// the GitHub API endpoint used to recognize base repositories.
func NewResolver(cache SHACache, apiURL string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, apiURL: strings.TrimSuffix(apiURL, "/"), logger: logger}
}

// PullsFromSHA maps a commit hash to the open pull request whose head is
// that commit. Returns an empty or single-element list, keeping the
// multi-result contract of the other resolution paths. The cache is
// consulted first; a miss scans the supplied open pull requests and
// writes through.
func (r *Resolver) PullsFromSHA(ctx context.Context, owner, repo, sha string, opened []github.PullRequest) ([]int, error) {
	key := shaCacheKey(owner, repo, sha)

	number, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("sha cache get: %w", err)
	}
	if ok {
		return []int{number}, nil
	}

	for i := range opened {
		pull := &opened[i]
		if pull.Head.SHA != sha {
			continue
		}
		if err := r.cache.Set(ctx, key, pull.Number, shaCacheExpiry); err != nil {
			return nil, fmt.Errorf("sha cache set: %w", err)
		}
		return []int{pull.Number}, nil
	}
	return nil, nil
}

// ExtractPullNumbers derives the pull request numbers affected by a slim
// event. Only event types that reference pull requests indirectly yield
// results; everything else returns an empty list.
func (r *Resolver) ExtractPullNumbers(
	ctx context.Context, owner, repo, eventType string, slim *SlimEvent, opened []github.PullRequest,
) ([]int, error) {
	switch eventType {
	case TypeRefresh:
		if slim.Ref == "" {
			numbers := make([]int, 0, len(opened))
			for i := range opened {
				numbers = append(numbers, opened[i].Number)
			}
			return numbers, nil
		}
		return pullsOnBranch(opened, slim.Ref), nil

	case TypePush:
		return pullsOnBranch(opened, slim.Ref), nil

	case TypeStatus:
		return r.PullsFromSHA(ctx, owner, repo, slim.SHA, opened)

	case TypeCheckSuite:
		return r.pullsFromCheck(ctx, owner, repo, slim.CheckSuite, opened)

	case TypeCheckRun:
		return r.pullsFromCheck(ctx, owner, repo, slim.CheckRun, opened)

	default:
		return nil, nil
	}
}

// pullsFromCheck resolves a check's pull requests. The check payload may
// list pull requests from forks of the repository; only those whose base
// repository is the queried one count. When nothing remains, fall back
// to resolving the check's head commit.
func (r *Resolver) pullsFromCheck(ctx context.Context, owner, repo string, check *SlimCheck, opened []github.PullRequest) ([]int, error) {
	if check == nil {
		return nil, nil
	}
	baseRepoURL := fmt.Sprintf("%s/repos/%s/%s", r.apiURL, owner, repo)

	var numbers []int
	for _, pull := range check.PullRequests {
		if pull.BaseRepoURL == baseRepoURL {
			numbers = append(numbers, pull.Number)
		}
	}
	if len(numbers) > 0 {
		return numbers, nil
	}
	return r.PullsFromSHA(ctx, owner, repo, check.HeadSHA, opened)
}

// pullsOnBranch returns the open pull requests whose base branch the ref
// points at.
func pullsOnBranch(opened []github.PullRequest, ref string) []int {
	branch := strings.TrimPrefix(ref, "refs/heads/")
	var numbers []int
	for i := range opened {
		if opened[i].Base.Ref == branch {
			numbers = append(numbers, opened[i].Number)
		}
	}
	return numbers
}

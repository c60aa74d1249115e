package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mergifyio/engine/pkg/github"
)

func openedPulls() []github.PullRequest {
	return []github.PullRequest{
		{Number: 1, Base: github.Branch{Ref: "main"}, Head: github.Branch{SHA: "aaa111"}},
		{Number: 2, Base: github.Branch{Ref: "main"}, Head: github.Branch{SHA: "bbb222"}},
		{Number: 3, Base: github.Branch{Ref: "stable/2.x"}, Head: github.Branch{SHA: "ccc333"}},
	}
}

func TestPullsFromSHA(t *testing.T) {
	ctx := context.Background()
	opened := openedPulls()

	t.Run("miss scans and writes through", func(t *testing.T) {
		cache := NewMemorySHACache()
		r := NewResolver(cache, github.DefaultAPIURL, nil)

		numbers, err := r.PullsFromSHA(ctx, "mergifyio", "engine", "bbb222", opened)
		if err != nil {
			t.Fatalf("PullsFromSHA failed: %v", err)
		}
		if len(numbers) != 1 || numbers[0] != 2 {
			t.Fatalf("numbers = %v, want [2]", numbers)
		}

		// The scan result must now be cached under the composite key.
		number, ok, err := cache.Get(ctx, "sha~mergifyio~engine~bbb222")
		if err != nil || !ok || number != 2 {
			t.Errorf("cache entry = (%d, %v, %v), want (2, true, nil)", number, ok, err)
		}
	})

	t.Run("hit skips the scan", func(t *testing.T) {
		cache := NewMemorySHACache()
		if err := cache.Set(ctx, "sha~mergifyio~engine~ddd444", 9, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		r := NewResolver(cache, github.DefaultAPIURL, nil)

		// ddd444 is not the head of any open pull request; only the cache
		// can produce this answer.
		numbers, err := r.PullsFromSHA(ctx, "mergifyio", "engine", "ddd444", opened)
		if err != nil {
			t.Fatalf("PullsFromSHA failed: %v", err)
		}
		if len(numbers) != 1 || numbers[0] != 9 {
			t.Errorf("numbers = %v, want [9]", numbers)
		}
	})

	t.Run("unknown sha resolves to nothing", func(t *testing.T) {
		r := NewResolver(NewMemorySHACache(), github.DefaultAPIURL, nil)
		numbers, err := r.PullsFromSHA(ctx, "mergifyio", "engine", "deadbeef", opened)
		if err != nil {
			t.Fatalf("PullsFromSHA failed: %v", err)
		}
		if len(numbers) != 0 {
			t.Errorf("numbers = %v, want none", numbers)
		}
	})

	t.Run("expired entry is rescanned", func(t *testing.T) {
		cache := NewMemorySHACache()
		current := time.Now()
		cache.now = func() time.Time { return current }
		r := NewResolver(cache, github.DefaultAPIURL, nil)

		if _, err := r.PullsFromSHA(ctx, "mergifyio", "engine", "aaa111", opened); err != nil {
			t.Fatalf("PullsFromSHA failed: %v", err)
		}

		current = current.Add(2 * time.Minute)
		numbers, err := r.PullsFromSHA(ctx, "mergifyio", "engine", "aaa111", opened)
		if err != nil {
			t.Fatalf("PullsFromSHA failed after expiry: %v", err)
		}
		if len(numbers) != 1 || numbers[0] != 1 {
			t.Errorf("numbers = %v, want [1]", numbers)
		}
	})
}

type erroringSHACache struct{}

func (erroringSHACache) Get(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("redis down")
}

func (erroringSHACache) Set(context.Context, string, int, time.Duration) error {
	return errors.New("redis down")
}

func TestPullsFromSHACacheFailure(t *testing.T) {
	r := NewResolver(erroringSHACache{}, github.DefaultAPIURL, nil)
	_, err := r.PullsFromSHA(context.Background(), "mergifyio", "engine", "aaa111", openedPulls())
	if err == nil {
		t.Fatal("expected the cache failure to propagate")
	}
}

func TestExtractPullNumbers(t *testing.T) {
	ctx := context.Background()
	opened := openedPulls()
	baseURL := github.DefaultAPIURL + "/repos/mergifyio/engine"

	tests := []struct {
		name      string
		eventType string
		slim      *SlimEvent
		want      []int
	}{
		{
			name:      "refresh without ref targets every open pull",
			eventType: TypeRefresh,
			slim:      &SlimEvent{},
			want:      []int{1, 2, 3},
		},
		{
			name:      "refresh with ref targets the branch",
			eventType: TypeRefresh,
			slim:      &SlimEvent{Ref: "refs/heads/main"},
			want:      []int{1, 2},
		},
		{
			name:      "push targets the branch",
			eventType: TypePush,
			slim:      &SlimEvent{Ref: "refs/heads/stable/2.x"},
			want:      []int{3},
		},
		{
			name:      "push on a branch without pulls",
			eventType: TypePush,
			slim:      &SlimEvent{Ref: "refs/heads/gh-pages"},
			want:      nil,
		},
		{
			name:      "status resolves through the commit hash",
			eventType: TypeStatus,
			slim:      &SlimEvent{SHA: "ccc333"},
			want:      []int{3},
		},
		{
			name:      "check_suite uses the listed pulls of this repository",
			eventType: TypeCheckSuite,
			slim: &SlimEvent{CheckSuite: &SlimCheck{
				HeadSHA: "aaa111",
				PullRequests: []SlimCheckPull{
					{Number: 7, BaseRepoURL: baseURL},
					{Number: 8, BaseRepoURL: github.DefaultAPIURL + "/repos/fork/engine"},
				},
			}},
			want: []int{7},
		},
		{
			name:      "check_run with only fork pulls falls back to the head sha",
			eventType: TypeCheckRun,
			slim: &SlimEvent{CheckRun: &SlimCheck{
				HeadSHA: "bbb222",
				PullRequests: []SlimCheckPull{
					{Number: 8, BaseRepoURL: github.DefaultAPIURL + "/repos/fork/engine"},
				},
			}},
			want: []int{2},
		},
		{
			name:      "check_run without payload resolves to nothing",
			eventType: TypeCheckRun,
			slim:      &SlimEvent{},
			want:      nil,
		},
		{
			name:      "pull_request carries its own number",
			eventType: TypePullRequest,
			slim:      &SlimEvent{Action: "opened"},
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(NewMemorySHACache(), github.DefaultAPIURL, nil)
			got, err := r.ExtractPullNumbers(ctx, "mergifyio", "engine", tt.eventType, tt.slim, opened)
			if err != nil {
				t.Fatalf("ExtractPullNumbers failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("numbers = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("numbers = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestResolverTrimsAPIURL(t *testing.T) {
	r := NewResolver(NewMemorySHACache(), github.DefaultAPIURL+"/", nil)
	slim := &SlimEvent{CheckRun: &SlimCheck{
		PullRequests: []SlimCheckPull{
			{Number: 5, BaseRepoURL: github.DefaultAPIURL + "/repos/mergifyio/engine"},
		},
	}}
	got, err := r.ExtractPullNumbers(context.Background(), "mergifyio", "engine", TypeCheckRun, slim, nil)
	if err != nil {
		t.Fatalf("ExtractPullNumbers failed: %v", err)
	}
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("numbers = %v, want [5]", got)
	}
}

// Package main provides the mergify-validate command-line tool for
// validating a .mergify.yml and simulating its rules against a pull
// request snapshot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/mergifyio/engine/pkg/config"
	"github.com/mergifyio/engine/pkg/github"
	"github.com/mergifyio/engine/pkg/rules"
)

func main() {
	configPath := flag.String("config", rules.ConfigFilePath, "Path to the configuration file")
	remote := flag.String("remote", "", "Validate a repository's live configuration instead of a local file, as owner/repo (reads MERGIFY_* environment variables)")
	ref := flag.String("ref", "", "Git reference to fetch the remote configuration from (default branch when empty)")
	branch := flag.String("branch", "", "Show the merged branch rule for this branch (legacy configurations)")
	snapshotPath := flag.String("snapshot", "", "JSON pull request snapshot to simulate the rules against")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	var cfg *rules.UserConfiguration
	var err error
	source := *configPath
	if *remote != "" {
		source = *remote
		cfg, err = loadRemote(context.Background(), *remote, *ref)
	} else {
		cfg, err = loadLocal(*configPath)
	}
	if err != nil {
		var invalid *rules.InvalidRulesError
		if errors.As(err, &invalid) {
			log.Printf("%v", invalid)
			os.Exit(1)
		}
		log.Printf("%v", err)
		os.Exit(1)
	}

	fmt.Printf("%s is valid\n", source)

	if *branch != "" {
		if err := showBranchRule(cfg, *branch); err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
	}

	if *snapshotPath != "" {
		if err := simulate(cfg, *snapshotPath); err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
	}
}

func loadLocal(path string) (*rules.UserConfiguration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rules.ErrNoRules
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rules.LoadUserConfiguration(content)
}

func loadRemote(ctx context.Context, target, ref string) (*rules.UserConfiguration, error) {
	owner, repo, ok := strings.Cut(target, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("-remote expects owner/repo, got %q", target)
	}

	appCfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	client := github.NewClient(appCfg.GitHubToken, github.WithAPIURL(appCfg.GitHubAPIURL))
	return rules.GetConfig(ctx, client, owner, repo, ref)
}

func showBranchRule(cfg *rules.UserConfiguration, branch string) error {
	if cfg.LegacyRules == nil {
		return errors.New("-branch only applies to legacy rules configurations")
	}
	defaultRule, err := rules.DefaultRule()
	if err != nil {
		return err
	}
	rule, err := rules.GetBranchRule(defaultRule, cfg.LegacyRules, branch)
	if err != nil {
		return err
	}
	if rule == nil {
		fmt.Printf("automation is disabled for branch %q\n", branch)
		return nil
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rule)
}

func simulate(cfg *rules.UserConfiguration, snapshotPath string) error {
	if cfg.PullRequestRules == nil {
		return errors.New("-snapshot only applies to pull_request_rules configurations")
	}

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}

	match, err := cfg.PullRequestRules.Match(rules.MapProvider(snapshot))
	if err != nil {
		return fmt.Errorf("evaluating rules: %w", err)
	}

	for _, rule := range match.MatchingRules {
		fmt.Printf("match: %s\n", rule.Name)
	}
	for _, next := range match.NextRules {
		fmt.Printf("near miss: %s (needs %s)\n", next.Rule.Name, next.Condition)
	}

	fmt.Println("merged directive:")
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(match.Directive)
}

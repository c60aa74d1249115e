package rules

import (
	"errors"
	"testing"
)

func TestDefaultRule(t *testing.T) {
	rule, err := DefaultRule()
	if err != nil {
		t.Fatalf("DefaultRule failed: %v", err)
	}
	protection, ok := rule["protection"].(map[string]any)
	if !ok {
		t.Fatalf("protection = %T, want a mapping", rule["protection"])
	}
	checks, ok := protection["required_status_checks"].(map[string]any)
	if !ok {
		t.Fatalf("required_status_checks = %T, want a mapping", protection["required_status_checks"])
	}
	if checks["strict"] != true {
		t.Errorf("strict = %v, want true", checks["strict"])
	}
	if rule["disabling_label"] != "no-mergify" {
		t.Errorf("disabling_label = %v", rule["disabling_label"])
	}
}

func TestDictMerge(t *testing.T) {
	dst := map[string]any{
		"protection": map[string]any{
			"required_status_checks": map[string]any{
				"strict":   true,
				"contexts": []any{},
			},
			"enforce_admins": false,
		},
		"disabling_label": "no-mergify",
	}
	src := map[string]any{
		"protection": map[string]any{
			"required_status_checks": map[string]any{
				"contexts": []any{"ci/build"},
			},
		},
		"disabling_label": "wip",
	}

	dictMerge(dst, src)

	protection := dst["protection"].(map[string]any)
	checks := protection["required_status_checks"].(map[string]any)
	if got := checks["contexts"].([]any); len(got) != 1 || got[0] != "ci/build" {
		t.Errorf("contexts = %v, lists must be replaced wholesale", got)
	}
	if checks["strict"] != true {
		t.Error("strict was lost, sibling keys must survive a recursive merge")
	}
	if protection["enforce_admins"] != false {
		t.Error("enforce_admins was lost")
	}
	if dst["disabling_label"] != "wip" {
		t.Errorf("disabling_label = %v, scalars must be replaced", dst["disabling_label"])
	}
}

func loadLegacy(t *testing.T, content string) *LegacyRules {
	t.Helper()
	cfg, err := LoadUserConfiguration([]byte(content))
	if err != nil {
		t.Fatalf("LoadUserConfiguration failed: %v", err)
	}
	if cfg.LegacyRules == nil {
		t.Fatal("LegacyRules is nil")
	}
	return cfg.LegacyRules
}

func TestGetBranchRule(t *testing.T) {
	defaultRule, err := DefaultRule()
	if err != nil {
		t.Fatalf("DefaultRule failed: %v", err)
	}

	t.Run("default block applies to unmatched branches", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  default:
    merge_strategy:
      method: rebase
`)
		rule, err := GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule == nil {
			t.Fatal("rule is nil")
		}
		if rule.MergeStrategy.Method != "rebase" {
			t.Errorf("method = %q, want rebase", rule.MergeStrategy.Method)
		}
		// Untouched keys come from the template.
		if rule.MergeStrategy.RebaseFallback != "merge" {
			t.Errorf("rebase_fallback = %q, want merge", rule.MergeStrategy.RebaseFallback)
		}
		if rule.DisablingLabel != "no-mergify" {
			t.Errorf("disabling_label = %q", rule.DisablingLabel)
		}
	})

	t.Run("literal branch override wins over default", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  default:
    merge_strategy:
      method: rebase
  branches:
    stable:
      merge_strategy:
        method: squash
`)
		rule, err := GetBranchRule(defaultRule, legacy, "stable")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule.MergeStrategy.Method != "squash" {
			t.Errorf("method = %q, want squash", rule.MergeStrategy.Method)
		}

		rule, err = GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule.MergeStrategy.Method != "rebase" {
			t.Errorf("method = %q for unmatched branch, want rebase", rule.MergeStrategy.Method)
		}
	})

	t.Run("caret pattern is a regex", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  branches:
    ^stable/.*:
      merge_strategy:
        method: squash
`)
		rule, err := GetBranchRule(defaultRule, legacy, "stable/2.x")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule.MergeStrategy.Method != "squash" {
			t.Errorf("method = %q, want squash", rule.MergeStrategy.Method)
		}

		rule, err = GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule.MergeStrategy.Method != "merge" {
			t.Errorf("method = %q for unmatched branch, want merge", rule.MergeStrategy.Method)
		}
	})

	t.Run("null branch disables automation", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  branches:
    main: null
`)
		rule, err := GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule != nil {
			t.Errorf("rule = %+v, want nil for a disabled branch", rule)
		}
	})

	t.Run("null default disables unmatched branches only", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  default: null
  branches:
    stable:
      merge_strategy:
        method: squash
`)
		rule, err := GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule != nil {
			t.Errorf("rule = %+v, want nil when the default is disabled", rule)
		}

		rule, err = GetBranchRule(defaultRule, legacy, "stable")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule == nil || rule.MergeStrategy.Method != "squash" {
			t.Errorf("rule = %+v, branch overrides must survive a disabled default", rule)
		}
	})

	t.Run("config file is always a disabling file", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  default:
    disabling_files:
      - .travis.yml
`)
		rule, err := GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		count := 0
		for _, path := range rule.DisablingFiles {
			if path == ConfigFilePath {
				count++
			}
		}
		if count != 1 {
			t.Errorf("%s appears %d times in DisablingFiles %v, want exactly once",
				ConfigFilePath, count, rule.DisablingFiles)
		}
		if !contains(rule.DisablingFiles, ".travis.yml") {
			t.Errorf("user disabling file lost: %v", rule.DisablingFiles)
		}
	})

	t.Run("already listed config file is not duplicated", func(t *testing.T) {
		legacy := loadLegacy(t, `
rules:
  default:
    disabling_files:
      - .mergify.yml
`)
		rule, err := GetBranchRule(defaultRule, legacy, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if len(rule.DisablingFiles) != 1 {
			t.Errorf("DisablingFiles = %v, want exactly one entry", rule.DisablingFiles)
		}
	})

	t.Run("nil legacy rules means no rule", func(t *testing.T) {
		rule, err := GetBranchRule(defaultRule, nil, "main")
		if err != nil {
			t.Fatalf("GetBranchRule failed: %v", err)
		}
		if rule != nil {
			t.Errorf("rule = %+v, want nil", rule)
		}
	})
}

func TestGetBranchRuleValidation(t *testing.T) {
	defaultRule, err := DefaultRule()
	if err != nil {
		t.Fatalf("DefaultRule failed: %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown key",
			content: `
rules:
  default:
    merge_stratgy:
      method: squash
`,
		},
		{
			name: "invalid merge method",
			content: `
rules:
  default:
    merge_strategy:
      method: fast-forward
`,
		},
		{
			name: "review count out of range",
			content: `
rules:
  default:
    protection:
      required_pull_request_reviews:
        required_approving_review_count: 7
`,
		},
		{
			name: "invalid branch regex",
			content: `
rules:
  branches:
    "^stable/[":
      merge_strategy:
        method: squash
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legacy := loadLegacy(t, tt.content)
			_, err := GetBranchRule(defaultRule, legacy, "stable/2.x")
			if err == nil {
				t.Fatal("expected an error")
			}
			var invalid *InvalidRulesError
			if !errors.As(err, &invalid) {
				t.Fatalf("got %T (%v), want *InvalidRulesError", err, err)
			}
		})
	}
}

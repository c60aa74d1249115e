package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_rule.yml
var defaultRuleYAML []byte

// DefaultRule returns the compiled-in rule template every branch rule is
// merged on top of. Loaded explicitly at startup and treated as
// immutable; callers must not mutate the returned tree.
func DefaultRule() (map[string]any, error) {
	var rule map[string]any
	if err := yaml.Unmarshal(defaultRuleYAML, &rule); err != nil {
		return nil, fmt.Errorf("parsing default rule template: %w", err)
	}
	return rule, nil
}

// LegacyRules is the legacy configuration shape: a default rule fragment
// plus per-branch overrides keyed by literal branch name or by a
// ^-anchored regular expression.
type LegacyRules struct {
	// Default is nil either when absent or when explicitly null; the two
	// cases behave differently, so DefaultDisabled records the latter.
	Default         map[string]any
	Branches        map[string]map[string]any
	DefaultDisabled bool
}

func newLegacyRules(raw any) (*LegacyRules, error) {
	if raw == nil {
		// rules: null disables everything.
		return &LegacyRules{DefaultDisabled: true}, nil
	}
	mapping, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidRules("rules must be a mapping or null")
	}

	legacy := &LegacyRules{Branches: make(map[string]map[string]any)}

	if rawDefault, present := mapping["default"]; present {
		if rawDefault == nil {
			legacy.DefaultDisabled = true
		} else {
			def, ok := rawDefault.(map[string]any)
			if !ok {
				return nil, invalidRules("rules.default must be a mapping or null")
			}
			legacy.Default = def
		}
	}

	if rawBranches, present := mapping["branches"]; present {
		branches, ok := rawBranches.(map[string]any)
		if !ok {
			return nil, invalidRules("rules.branches must be a mapping")
		}
		for pattern, rawRule := range branches {
			if rawRule == nil {
				legacy.Branches[pattern] = nil
				continue
			}
			rule, ok := rawRule.(map[string]any)
			if !ok {
				return nil, invalidRules("rules.branches[%q] must be a mapping or null", pattern)
			}
			legacy.Branches[pattern] = rule
		}
	}

	return legacy, nil
}

// BranchRule is the fully merged, schema-complete configuration for one
// branch.
type BranchRule struct {
	AutomatedBackportLabels map[string]string `yaml:"automated_backport_labels"`
	EnablingLabel           *string           `yaml:"enabling_label"`
	DisablingLabel          string            `yaml:"disabling_label" validate:"required"`
	DisablingFiles          []string          `yaml:"disabling_files"`
	Protection              Protection        `yaml:"protection"`
	MergeStrategy           MergeStrategy     `yaml:"merge_strategy"`
}

// Protection mirrors the branch protection settings pushed to GitHub.
type Protection struct {
	RequiredStatusChecks       *RequiredStatusChecks `yaml:"required_status_checks"`
	RequiredPullRequestReviews *RequiredReviews      `yaml:"required_pull_request_reviews"`
	Restrictions               *Restrictions         `yaml:"restrictions"`
	EnforceAdmins              *bool                 `yaml:"enforce_admins"`
}

// RequiredStatusChecks lists the status contexts that must pass.
type RequiredStatusChecks struct {
	Contexts []string `yaml:"contexts"`
	Strict   bool     `yaml:"strict"`
}

// RequiredReviews configures review requirements.
type RequiredReviews struct {
	RequiredApprovingReviewCount int  `yaml:"required_approving_review_count" validate:"min=1,max=6"`
	DismissStaleReviews          bool `yaml:"dismiss_stale_reviews"`
	RequireCodeOwnerReviews      bool `yaml:"require_code_owner_reviews"`
}

// Restrictions limits who can push to the branch.
type Restrictions struct {
	Teams []string `yaml:"teams"`
	Users []string `yaml:"users"`
}

// MergeStrategy selects how matching pull requests get merged.
type MergeStrategy struct {
	Method         string `yaml:"method" validate:"required,oneof=rebase merge squash"`
	RebaseFallback string `yaml:"rebase_fallback" validate:"required,oneof=merge squash none"`
}

var branchRuleValidator = validator.New()

// dictMerge deep-merges src into dst: mapping values merge recursively
// key by key, everything else (scalars and lists) is replaced wholesale.
func dictMerge(dst, src map[string]any) {
	for key, srcValue := range src {
		if dstMap, ok := dst[key].(map[string]any); ok {
			if srcMap, ok := srcValue.(map[string]any); ok {
				dictMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcValue
	}
}

func deepCopy(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if m, ok := value.(map[string]any); ok {
			dst[key] = deepCopy(m)
			continue
		}
		dst[key] = value
	}
	return dst
}

// buildBranchRule resolves the effective rule tree for a branch, or nil
// when automation is disabled for it. Branch patterns are tried in
// lexicographic order; a leading ^ selects regex matching, anything else
// is a literal. First match wins.
func buildBranchRule(defaultRule map[string]any, legacy *LegacyRules, branch string) (map[string]any, error) {
	patterns := make([]string, 0, len(legacy.Branches))
	for pattern := range legacy.Branches {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		var matched bool
		if pattern != "" && pattern[0] == '^' {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, invalidRules("branch pattern %q: %s", pattern, err)
			}
			matched = re.MatchString(branch)
		} else {
			matched = pattern == branch
		}
		if !matched {
			continue
		}
		override := legacy.Branches[pattern]
		if override == nil {
			return nil, nil
		}
		rule := deepCopy(defaultRule)
		if legacy.Default != nil {
			dictMerge(rule, legacy.Default)
		}
		dictMerge(rule, override)
		return rule, nil
	}

	// No branch pattern matched: fall back to the default block alone.
	if legacy.DefaultDisabled {
		return nil, nil
	}
	rule := deepCopy(defaultRule)
	if legacy.Default != nil {
		dictMerge(rule, legacy.Default)
	}
	return rule, nil
}

// GetBranchRule returns the validated branch rule for the given branch,
// or nil when automation is disabled for it. The configuration file's own
// path is always present in DisablingFiles so that editing the
// configuration disables automation pending revalidation.
func GetBranchRule(defaultRule map[string]any, legacy *LegacyRules, branch string) (*BranchRule, error) {
	if legacy == nil {
		return nil, nil
	}

	merged, err := buildBranchRule(defaultRule, legacy, branch)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return nil, nil
	}

	rule, err := decodeBranchRule(merged)
	if err != nil {
		return nil, err
	}
	if err := branchRuleValidator.Struct(rule); err != nil {
		return nil, invalidRules("branch %q: %s", branch, err)
	}

	if !contains(rule.DisablingFiles, ConfigFilePath) {
		rule.DisablingFiles = append(rule.DisablingFiles, ConfigFilePath)
	}
	return rule, nil
}

// decodeBranchRule converts the merged rule tree into the typed,
// schema-complete form via a YAML round trip with unknown keys rejected.
func decodeBranchRule(merged map[string]any) (*BranchRule, error) {
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding merged branch rule: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var rule BranchRule
	if err := dec.Decode(&rule); err != nil {
		return nil, invalidRules("%s", yamlErrorDetail(err))
	}
	return &rule, nil
}

func contains(list []string, s string) bool {
	for _, elem := range list {
		if elem == s {
			return true
		}
	}
	return false
}

// Package rules implements the policy condition language and the
// rule-matching engine: parsing of user configuration (both the legacy
// per-branch shape and the current pull_request_rules shape), compilation
// of condition clauses, and evaluation of rules against a pull request's
// attribute snapshot.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/mergifyio/engine/pkg/github"
	"gopkg.in/yaml.v3"
)

// ConfigFilePath is where the user configuration lives in a repository.
const ConfigFilePath = ".mergify.yml"

// ErrNoRules indicates the repository has no configuration file. Callers
// surface it to the user as a distinct outcome, not a generic failure.
var ErrNoRules = errors.New(ConfigFilePath + " is missing")

// InvalidRulesError reports a configuration that failed schema or grammar
// validation. Detail includes the YAML position when one is derivable.
type InvalidRulesError struct {
	Detail string
}

func (e *InvalidRulesError) Error() string {
	return "Mergify configuration is invalid: " + e.Detail
}

func invalidRules(format string, args ...any) *InvalidRulesError {
	return &InvalidRulesError{Detail: fmt.Sprintf(format, args...)}
}

// PullRequestRule is one named rule: an ordered condition list plus the
// action directive carried by the remaining keys of its mapping.
type PullRequestRule struct {
	Name       string
	Conditions []*ConditionTree

	// raw is the full rule mapping as declared, action keys included.
	// Matching rules shallow-merge their raw mappings in declaration
	// order to produce the merged directive.
	raw map[string]any
}

// Has reports whether the rule's directive mentions the named feature.
func (r *PullRequestRule) Has(feature string) bool {
	_, ok := r.raw[feature]
	return ok
}

// PullRequestRules is an ordered, compiled rule list.
type PullRequestRules struct {
	rules []*PullRequestRule
}

// Rules returns the compiled rules in declaration order.
func (rs *PullRequestRules) Rules() []*PullRequestRule { return rs.rules }

// NextRule records a rule that did not match and the first of its
// conditions that failed.
type NextRule struct {
	Rule      *PullRequestRule
	Condition *ConditionTree
}

// Match is the result of evaluating a rule list against one pull request
// snapshot. Never cached across snapshots: pull request state mutates
// continuously.
type Match struct {
	Directive     map[string]any
	MatchingRules []*PullRequestRule
	NextRules     []NextRule
}

// NextConditionsFor returns the unmet conditions across rules that
// reference the feature but did not fully match, i.e. what would need to
// change for the feature to activate.
func (m *Match) NextConditionsFor(feature string) []*ConditionTree {
	var conds []*ConditionTree
	for _, next := range m.NextRules {
		if next.Rule.Has(feature) {
			conds = append(conds, next.Condition)
		}
	}
	return conds
}

// Match evaluates every rule, in order, against the snapshot. Matching is
// exhaustive over the list; on key conflicts in the merged directive the
// later-declared rule wins.
func (rs *PullRequestRules) Match(attrs AttributeProvider) (*Match, error) {
	m := &Match{Directive: make(map[string]any)}
	for _, rule := range rs.rules {
		matched := true
		for _, cond := range rule.Conditions {
			ok, err := cond.Match(attrs)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
			if !ok {
				m.NextRules = append(m.NextRules, NextRule{Rule: rule, Condition: cond})
				matched = false
				break
			}
		}
		if matched {
			m.MatchingRules = append(m.MatchingRules, rule)
			for k, v := range rule.raw {
				m.Directive[k] = v
			}
		}
	}
	// name and conditions are clerical, not action data. Absence is fine
	// when nothing matched.
	delete(m.Directive, "name")
	delete(m.Directive, "conditions")
	return m, nil
}

// UserConfiguration is the parsed configuration file: exactly one of the
// current pull_request_rules shape or the legacy rules shape.
type UserConfiguration struct {
	PullRequestRules *PullRequestRules
	LegacyRules      *LegacyRules
}

// LoadUserConfiguration parses and eagerly validates configuration
// content. Condition clauses are compiled immediately so grammar errors
// surface at load time.
func LoadUserConfiguration(content []byte) (*UserConfiguration, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		// yaml.v3 error strings carry the line position.
		return nil, invalidRules("%s", yamlErrorDetail(err))
	}
	if doc == nil {
		return nil, invalidRules("configuration is empty")
	}

	rawRules, hasLegacy := doc["rules"]
	rawPRRules, hasCurrent := doc["pull_request_rules"]

	switch {
	case hasLegacy && hasCurrent:
		return nil, invalidRules("rules and pull_request_rules are mutually exclusive")
	case hasCurrent:
		prRules, err := NewPullRequestRules(rawPRRules)
		if err != nil {
			return nil, err
		}
		return &UserConfiguration{PullRequestRules: prRules}, nil
	case hasLegacy:
		legacy, err := newLegacyRules(rawRules)
		if err != nil {
			return nil, err
		}
		return &UserConfiguration{LegacyRules: legacy}, nil
	default:
		return nil, invalidRules("expected one of rules or pull_request_rules")
	}
}

// NewPullRequestRules compiles the pull_request_rules value: a list of
// mappings, each with a required name and a required condition list.
func NewPullRequestRules(raw any) (*PullRequestRules, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, invalidRules("pull_request_rules must be a list")
	}
	rs := &PullRequestRules{}
	for i, item := range items {
		mapping, ok := item.(map[string]any)
		if !ok {
			return nil, invalidRules("pull_request_rules[%d] must be a mapping", i)
		}
		name, ok := mapping["name"].(string)
		if !ok || name == "" {
			return nil, invalidRules("pull_request_rules[%d] needs a name", i)
		}
		rawConds, ok := mapping["conditions"].([]any)
		if !ok {
			return nil, invalidRules("rule %q needs a conditions list", name)
		}
		rule := &PullRequestRule{Name: name, raw: mapping}
		for _, rawCond := range rawConds {
			tree, err := decodeConditionTree(rawCond)
			if err != nil {
				return nil, invalidRules("rule %q: %s", name, err)
			}
			rule.Conditions = append(rule.Conditions, tree)
		}
		rs.rules = append(rs.rules, rule)
	}
	return rs, nil
}

// decodeConditionTree turns one conditions entry into a tree: a bare
// string compiles to a leaf, a single-entry "and"/"or" mapping to a
// combinator. The single-entry constraint is enforced here.
func decodeConditionTree(raw any) (*ConditionTree, error) {
	switch v := raw.(type) {
	case string:
		cond, err := Parse(v)
		if err != nil {
			return nil, err
		}
		return &ConditionTree{Leaf: cond}, nil
	case map[string]any:
		if len(v) != 1 {
			return nil, fmt.Errorf("combinator must have exactly one of and/or, got %d entries", len(v))
		}
		for key, rawSubs := range v {
			if key != "and" && key != "or" {
				return nil, fmt.Errorf("unknown combinator %q", key)
			}
			items, ok := rawSubs.([]any)
			if !ok {
				return nil, fmt.Errorf("%s must hold a list of conditions", key)
			}
			subs := make([]*ConditionTree, 0, len(items))
			for _, item := range items {
				sub, err := decodeConditionTree(item)
				if err != nil {
					return nil, err
				}
				subs = append(subs, sub)
			}
			tree := &ConditionTree{}
			if key == "and" {
				tree.And = subs
			} else {
				tree.Or = subs
			}
			return tree, nil
		}
	}
	return nil, fmt.Errorf("condition must be a string or an and/or mapping, got %T", raw)
}

// ContentFetcher is the subset of the GitHub client the configuration
// loader needs.
type ContentFetcher interface {
	Content(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// GetConfig fetches and parses the repository's configuration file.
// Returns ErrNoRules when the file does not exist.
func GetConfig(ctx context.Context, fetcher ContentFetcher, owner, repo, ref string) (*UserConfiguration, error) {
	content, err := fetcher.Content(ctx, owner, repo, ConfigFilePath, ref)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, ErrNoRules
		}
		return nil, fmt.Errorf("fetching %s: %w", ConfigFilePath, err)
	}
	return LoadUserConfiguration(content)
}

func yamlErrorDetail(err error) string {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		return typeErr.Errors[0]
	}
	return err.Error()
}

// MapProvider adapts a plain attribute map (e.g. decoded from YAML or
// JSON) into an AttributeProvider. Lookups of attributes absent from the
// map fail, matching the engine's treatment of unknown attributes.
func MapProvider(attrs map[string]any) AttributeProvider {
	return func(field string) (any, error) {
		value, ok := attrs[field]
		if !ok {
			return nil, fmt.Errorf("unknown attribute %q", field)
		}
		return value, nil
	}
}

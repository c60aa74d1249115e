package rules

import (
	"fmt"
)

// AttributeProvider maps a condition field name to the pull request's
// current value for it. Values may be strings, bools, ints, or lists of
// strings ([]string or []any holding strings).
type AttributeProvider func(field string) (any, error)

// ConditionTree is either a leaf condition or exactly one "and"/"or"
// combinator over sub-trees.
type ConditionTree struct {
	Leaf *Condition
	And  []*ConditionTree
	Or   []*ConditionTree
}

// Match evaluates the tree against the given attribute provider.
// Combinators short-circuit left to right.
func (t *ConditionTree) Match(attrs AttributeProvider) (bool, error) {
	switch {
	case t.Leaf != nil:
		return t.Leaf.Match(attrs)
	case t.And != nil:
		for _, sub := range t.And {
			ok, err := sub.Match(attrs)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case t.Or != nil:
		for _, sub := range t.Or {
			ok, err := sub.Match(attrs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("empty condition tree")
	}
}

// String renders the tree in condition syntax, combinators as
// `and(...)`/`or(...)`. Used in logs and near-miss reports.
func (t *ConditionTree) String() string {
	join := func(name string, subs []*ConditionTree) string {
		s := name + "("
		for i, sub := range subs {
			if i > 0 {
				s += ", "
			}
			s += sub.String()
		}
		return s + ")"
	}
	switch {
	case t.Leaf != nil:
		return t.Leaf.String()
	case t.And != nil:
		return join("and", t.And)
	case t.Or != nil:
		return join("or", t.Or)
	default:
		return "<empty>"
	}
}

// Match evaluates the leaf condition against the attribute provider.
func (c *Condition) Match(attrs AttributeProvider) (bool, error) {
	value, err := attrs(c.Field)
	if err != nil {
		return false, err
	}

	var ok bool
	if c.Count {
		n, err := cardinality(value)
		if err != nil {
			return false, fmt.Errorf("attribute %s: %w", c.Field, err)
		}
		ok, err = c.compareInt(n)
		if err != nil {
			return false, err
		}
	} else {
		ok, err = c.compare(value)
		if err != nil {
			return false, fmt.Errorf("attribute %s: %w", c.Field, err)
		}
	}

	if c.Negate {
		ok = !ok
	}
	return ok, nil
}

// compare applies the operator to a non-count attribute value. Equality
// on a list means membership; ~= on a list matches any element.
func (c *Condition) compare(value any) (bool, error) {
	if list, isList := asList(value); isList {
		for _, elem := range list {
			ok, err := c.compareScalar(elem)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return c.compareScalar(value)
}

func (c *Condition) compareScalar(value any) (bool, error) {
	switch c.Op {
	case OpEqual, OpNotEqual:
		eq, err := equal(value, c.Value)
		if err != nil {
			return false, err
		}
		if c.Op == OpNotEqual {
			return !eq, nil
		}
		return eq, nil
	case OpMatch:
		s, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("~= needs a string value, got %T", value)
		}
		return c.re.MatchString(s), nil
	case OpGreaterOrEqual, OpLessOrEqual, OpLess, OpGreater:
		n, ok := asInt(value)
		if !ok {
			return false, fmt.Errorf("%s needs an integer value, got %T", c.Op, value)
		}
		return c.compareInt(n)
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

// compareInt applies the operator to an integer attribute, used both for
// count-prefixed conditions and for naturally numeric attributes.
func (c *Condition) compareInt(n int) (bool, error) {
	want, ok := asInt(c.Value)
	if !ok {
		return false, fmt.Errorf("condition value %v is not an integer", c.Value)
	}
	switch c.Op {
	case OpEqual:
		return n == want, nil
	case OpNotEqual:
		return n != want, nil
	case OpGreaterOrEqual:
		return n >= want, nil
	case OpLessOrEqual:
		return n <= want, nil
	case OpLess:
		return n < want, nil
	case OpGreater:
		return n > want, nil
	default:
		return false, fmt.Errorf("operator %s does not apply to integers", c.Op)
	}
}

func equal(a, b any) (bool, error) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv, nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv, nil
	case nil:
		return b == nil, nil
	default:
		if an, ok := asInt(a); ok {
			bn, ok := asInt(b)
			return ok && an == bn, nil
		}
		return false, fmt.Errorf("cannot compare %T", a)
	}
}

// cardinality returns the integer a count-prefixed condition compares
// against: list length, or the value itself when already numeric.
func cardinality(value any) (int, error) {
	if list, ok := asList(value); ok {
		return len(list), nil
	}
	if n, ok := asInt(value); ok {
		return n, nil
	}
	return 0, fmt.Errorf("value %T has no cardinality", value)
}

// asList normalizes []string and []any attribute values.
func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		return list, true
	default:
		return nil, false
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

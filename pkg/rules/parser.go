package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a comparison operator in the condition language.
type Operator string

// Operators accepted by the condition grammar. ":" and "==" are accepted
// on input and normalized to OpEqual; the Unicode aliases normalize to
// their ASCII counterparts.
const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpMatch          Operator = "~="
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpLess           Operator = "<"
	OpGreater        Operator = ">"
)

// fields is the attribute vocabulary of the condition language.
var fields = map[string]bool{
	"head":                        true,
	"base":                        true,
	"author":                      true,
	"merged-by":                   true,
	"body":                        true,
	"assignee":                    true,
	"label":                       true,
	"locked":                      true,
	"title":                       true,
	"files":                       true,
	"milestone":                   true,
	"review-requested":            true,
	"review-approved-by":          true,
	"review-dismissed-by":         true,
	"review-changes-requested-by": true,
	"review-commented-by":         true,
	"status-success":              true,
	"status-pending":              true,
	"status-failure":              true,
}

// operatorTokens is ordered so that multi-character operators are tried
// before their single-character prefixes.
var operatorTokens = []struct {
	token string
	op    Operator
}{
	{"==", OpEqual},
	{"!=", OpNotEqual},
	{"~=", OpMatch},
	{">=", OpGreaterOrEqual},
	{"<=", OpLessOrEqual},
	{"≠", OpNotEqual},
	{"≥", OpGreaterOrEqual},
	{"≤", OpLessOrEqual},
	{":", OpEqual},
	{"=", OpEqual},
	{"<", OpLess},
	{">", OpGreater},
}

// Condition is one parsed leaf predicate of the condition language.
// Value is a string, an int (count-prefixed conditions), or a bool
// (the implicit "locked" form). Immutable once parsed.
type Condition struct {
	Value  any
	Field  string
	Op     Operator
	Negate bool
	Count  bool

	// re is precompiled for OpMatch conditions so evaluation stays cheap
	// and invalid patterns are rejected at parse time.
	re *regexp.Regexp
}

// ParseError reports a condition clause that does not match the grammar.
type ParseError struct {
	Text    string
	Message string
	Pos     int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid condition %q at position %d: %s", e.Text, e.Pos, e.Message)
}

// Parse parses one whitespace-delimited condition clause, e.g.
// `base=main`, `-label="needs review"`, `#files>2` or `locked`.
func Parse(text string) (*Condition, error) {
	p := &parser{text: text, rest: text}

	cond := &Condition{}

	switch {
	case p.eat("-"), p.eat("¬"):
		cond.Negate = true
	case p.eat("+"):
		// Explicit affirmation, same as the default.
	}

	cond.Count = p.eat("#")

	field, ok := p.field()
	if !ok {
		return nil, p.fail("expected an attribute name")
	}
	cond.Field = field

	// "locked" takes no operator or value.
	if field == "locked" {
		if p.rest != "" {
			return nil, p.fail("locked takes no operator or value")
		}
		cond.Op = OpEqual
		cond.Value = true
		return cond, nil
	}

	op, ok := p.operator()
	if !ok {
		return nil, p.fail("expected an operator")
	}
	cond.Op = op

	value, err := p.value()
	if err != nil {
		return nil, err
	}

	if cond.Count {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, p.failAt(len(text)-len(value), "count comparison needs an integer value")
		}
		cond.Value = n
	} else {
		cond.Value = value
	}

	if cond.Op == OpMatch {
		s, ok := cond.Value.(string)
		if !ok {
			return nil, p.fail("~= needs a string pattern")
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, p.failAt(len(text)-len(p.rest), "invalid regular expression: "+err.Error())
		}
		cond.re = re
	}

	return cond, nil
}

// String renders the condition back into clause syntax. Parsing the
// result yields an equivalent condition.
func (c *Condition) String() string {
	var b strings.Builder
	if c.Negate {
		b.WriteString("-")
	}
	if c.Count {
		b.WriteString("#")
	}
	b.WriteString(c.Field)
	if c.Field == "locked" {
		return b.String()
	}
	b.WriteString(string(c.Op))
	switch v := c.Value.(type) {
	case int:
		b.WriteString(strconv.Itoa(v))
	case string:
		if strings.ContainsAny(v, " \t") {
			b.WriteString(strconv.Quote(v))
		} else {
			b.WriteString(v)
		}
	default:
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}

// parser is a cursor over a single condition clause.
type parser struct {
	text string
	rest string
}

func (p *parser) pos() int { return len(p.text) - len(p.rest) }

func (p *parser) eat(prefix string) bool {
	if strings.HasPrefix(p.rest, prefix) {
		p.rest = p.rest[len(prefix):]
		return true
	}
	return false
}

// field consumes the longest run of attribute-name characters and checks
// it against the vocabulary.
func (p *parser) field() (string, bool) {
	i := 0
	for i < len(p.rest) {
		c := p.rest[i]
		if (c < 'a' || c > 'z') && c != '-' {
			break
		}
		i++
	}
	name := p.rest[:i]
	if !fields[name] {
		return "", false
	}
	p.rest = p.rest[i:]
	return name, true
}

func (p *parser) operator() (Operator, bool) {
	for _, t := range operatorTokens {
		if p.eat(t.token) {
			return t.op, true
		}
	}
	return "", false
}

// value consumes either a double-quoted string (internal whitespace
// preserved) or the remainder of the clause.
func (p *parser) value() (string, error) {
	if p.rest == "" {
		return "", p.fail("expected a value")
	}
	if p.rest[0] == '"' {
		end := strings.IndexByte(p.rest[1:], '"')
		if end < 0 {
			return "", p.fail("unterminated quoted value")
		}
		v := p.rest[1 : 1+end]
		p.rest = p.rest[2+end:]
		if p.rest != "" {
			return "", p.fail("unexpected trailing characters after quoted value")
		}
		return v, nil
	}
	if strings.ContainsAny(p.rest, " \t") {
		return "", p.fail("unquoted value must not contain whitespace")
	}
	v := p.rest
	p.rest = ""
	return v, nil
}

func (p *parser) fail(msg string) *ParseError {
	return p.failAt(p.pos(), msg)
}

func (p *parser) failAt(pos int, msg string) *ParseError {
	return &ParseError{Text: p.text, Pos: pos, Message: msg}
}

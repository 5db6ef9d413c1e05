package rules

import (
	"fmt"
	"strings"

	"secops-service/internal/model"
)

// The condition language is deliberately tiny:
//
//	level = critical
//	category = security AND message CONTAINS "failed login"
//	source IN (auth, session) AND level = error
//
// Fields: level, category, source, message. Operators: =, CONTAINS, IN.
// Clauses combine with AND only.

type Field string

const (
	FieldLevel    Field = "level"
	FieldCategory Field = "category"
	FieldSource   Field = "source"
	FieldMessage  Field = "message"
)

type Op string

const (
	OpEq       Op = "="
	OpContains Op = "CONTAINS"
	OpIn       Op = "IN"
)

// Clause is a single field/operator/literal comparison.
type Clause struct {
	Field  Field
	Op     Op
	Value  string
	Values []string // IN only
}

// Condition is an AND-combination of clauses.
type Condition struct {
	Clauses []Clause
}

// Parse compiles a condition expression. A malformed expression is a hard
// error at registration time; callers must not evaluate a nil condition.
func Parse(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty condition")
	}

	var cond Condition
	for _, raw := range splitAnd(expr) {
		clause, err := parseClause(raw)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", raw, err)
		}
		cond.Clauses = append(cond.Clauses, clause)
	}
	return &cond, nil
}

// splitAnd splits on the AND keyword outside quotes.
func splitAnd(expr string) []string {
	var parts []string
	var sb strings.Builder
	inQuote := byte(0)
	tokens := strings.Fields(expr)
	for _, tok := range tokens {
		if inQuote == 0 && strings.EqualFold(tok, "AND") {
			parts = append(parts, strings.TrimSpace(sb.String()))
			sb.Reset()
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
		if inQuote == 0 {
			if q := openQuote(tok); q != 0 {
				inQuote = q
			}
		} else if strings.HasSuffix(tok, string(inQuote)) {
			inQuote = 0
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, strings.TrimSpace(sb.String()))
	}
	return parts
}

func openQuote(tok string) byte {
	for _, q := range []byte{'"', '\''} {
		if idx := strings.IndexByte(tok, q); idx >= 0 {
			// quote opened and not closed within the same token
			if strings.Count(tok, string(q))%2 == 1 {
				return q
			}
		}
	}
	return 0
}

func parseClause(raw string) (Clause, error) {
	fields := strings.Fields(raw)
	if len(fields) < 3 {
		return Clause{}, fmt.Errorf("expected <field> <op> <value>")
	}

	field, err := parseField(fields[0])
	if err != nil {
		return Clause{}, err
	}

	opTok := strings.ToUpper(fields[1])
	afterField := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), fields[0]))
	rest := strings.TrimSpace(strings.TrimPrefix(afterField, fields[1]))

	switch opTok {
	case "=":
		return Clause{Field: field, Op: OpEq, Value: unquote(rest)}, nil
	case "CONTAINS":
		return Clause{Field: field, Op: OpContains, Value: unquote(rest)}, nil
	case "IN":
		values, err := parseList(rest)
		if err != nil {
			return Clause{}, err
		}
		return Clause{Field: field, Op: OpIn, Values: values}, nil
	default:
		return Clause{}, fmt.Errorf("unknown operator %q", fields[1])
	}
}

func parseField(tok string) (Field, error) {
	switch Field(strings.ToLower(tok)) {
	case FieldLevel:
		return FieldLevel, nil
	case FieldCategory:
		return FieldCategory, nil
	case FieldSource:
		return FieldSource, nil
	case FieldMessage:
		return FieldMessage, nil
	}
	return "", fmt.Errorf("unknown field %q", tok)
}

func parseList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return nil, fmt.Errorf("IN requires a parenthesized list")
	}
	open, shut := raw[0], raw[len(raw)-1]
	if !(open == '(' && shut == ')') && !(open == '[' && shut == ']') {
		return nil, fmt.Errorf("IN requires a parenthesized list")
	}
	inner := raw[1 : len(raw)-1]
	var values []string
	for _, part := range strings.Split(inner, ",") {
		if v := unquote(strings.TrimSpace(part)); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("IN list is empty")
	}
	return values, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Matches evaluates the condition against a log entry. All clauses must hold.
func (c *Condition) Matches(entry *model.LogEntry) bool {
	if c == nil || entry == nil {
		return false
	}
	for _, clause := range c.Clauses {
		if !clause.matches(entry) {
			return false
		}
	}
	return len(c.Clauses) > 0
}

func (cl Clause) matches(entry *model.LogEntry) bool {
	actual := fieldValue(cl.Field, entry)
	switch cl.Op {
	case OpEq:
		return strings.EqualFold(actual, cl.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(cl.Value))
	case OpIn:
		for _, v := range cl.Values {
			if strings.EqualFold(actual, v) {
				return true
			}
		}
		return false
	}
	return false
}

func fieldValue(f Field, entry *model.LogEntry) string {
	switch f {
	case FieldLevel:
		return string(entry.Level)
	case FieldCategory:
		return string(entry.Category)
	case FieldSource:
		return entry.Source
	case FieldMessage:
		return entry.Message
	}
	return ""
}

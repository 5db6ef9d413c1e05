package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secops-service/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		clauses int
		wantErr bool
	}{
		{name: "simple_equality", expr: "level = critical", clauses: 1},
		{name: "contains", expr: `message CONTAINS "failed login"`, clauses: 1},
		{name: "in_list", expr: "source IN (auth, session)", clauses: 1},
		{name: "and_combination", expr: "category = security AND level = error", clauses: 2},
		{name: "triple_and", expr: "category = security AND level = error AND source = auth", clauses: 3},
		{name: "lowercase_operators", expr: "level in (error, critical)", clauses: 1},
		{name: "empty", expr: "", wantErr: true},
		{name: "unknown_field", expr: "host = web-01", wantErr: true},
		{name: "unknown_operator", expr: "level >= error", wantErr: true},
		{name: "in_without_list", expr: "level IN error", wantErr: true},
		{name: "in_empty_list", expr: "level IN ()", wantErr: true},
		{name: "missing_value", expr: "level =", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cond, err := Parse(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, cond.Clauses, tc.clauses)
		})
	}
}

func TestConditionMatches(t *testing.T) {
	entry := &model.LogEntry{
		Level:    model.LevelError,
		Category: model.CategorySecurity,
		Source:   "auth",
		Message:  "Failed login attempt for user admin",
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "level_match", expr: "level = error", want: true},
		{name: "level_mismatch", expr: "level = critical", want: false},
		{name: "level_case_insensitive", expr: "level = ERROR", want: true},
		{name: "contains_case_insensitive", expr: `message CONTAINS "failed login"`, want: true},
		{name: "contains_mismatch", expr: `message CONTAINS "sql injection"`, want: false},
		{name: "in_hit", expr: "source IN (auth, session)", want: true},
		{name: "in_miss", expr: "source IN (billing, session)", want: false},
		{name: "and_all_hold", expr: `category = security AND message CONTAINS "failed login"`, want: true},
		{name: "and_one_fails", expr: "category = security AND level = critical", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cond, err := Parse(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cond.Matches(entry))
		})
	}
}

func TestConditionMatchesNilSafety(t *testing.T) {
	var cond *Condition
	assert.False(t, cond.Matches(&model.LogEntry{Level: model.LevelError}))

	parsed, err := Parse("level = error")
	require.NoError(t, err)
	assert.False(t, parsed.Matches(nil))
}

func TestParseQuotedValues(t *testing.T) {
	cond, err := Parse(`message CONTAINS "connection AND timeout"`)
	require.NoError(t, err)
	require.Len(t, cond.Clauses, 1)
	assert.Equal(t, "connection AND timeout", cond.Clauses[0].Value)

	matches := cond.Matches(&model.LogEntry{Message: "db connection AND timeout exceeded"})
	assert.True(t, matches)
}

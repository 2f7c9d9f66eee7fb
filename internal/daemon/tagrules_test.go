package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagRules(t *testing.T) {
	rules, err := parseTagRules(`[
		{"tag":"auth","pattern":"src/auth/**","entity_type":"chunk"},
		{"tag":"sql","pattern":"*.sql"}
	]`)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "auth", rules[0].Tag)
	assert.Equal(t, "chunk", rules[0].EntityType)
	assert.Empty(t, rules[1].EntityType)

	rules, err = parseTagRules("")
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestParseTagRulesRejectsBadInput(t *testing.T) {
	_, err := parseTagRules(`[{"pattern":"*.sql"}]`)
	require.Error(t, err)

	_, err = parseTagRules(`[{"tag":"x","pattern":"y","entity_type":"symbol"}]`)
	require.Error(t, err)

	_, err = parseTagRules(`{`)
	require.Error(t, err)
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"src/auth/**", "src/auth/login.py", true},
		{"src/auth/**", "src/billing/pay.py", false},
		{"*.sql", "migrations/001_init.sql", true},
		{"*.sql", "main.py", false},
		{"docs/", "docs/guide.md", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchRule(tt.pattern, tt.path), "%s vs %s", tt.pattern, tt.path)
	}
}

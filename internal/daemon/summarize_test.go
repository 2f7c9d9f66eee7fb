package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/store"
)

func TestFilePrompt(t *testing.T) {
	msgs := filePrompt(store.SummaryCandidate{
		TargetKind: store.SummaryTargetFile,
		Path:       "src/auth/login.py",
		Text:       "def login(): ...",
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "src/auth/login.py")
	assert.Contains(t, msgs[1].Content, "def login")
}

func TestSymbolPrompt(t *testing.T) {
	msgs := symbolPrompt(store.SummaryCandidate{
		TargetKind: store.SummaryTargetSymbol,
		Path:       "src/auth/login.py",
		Name:       "Session.refresh",
		Text:       "def refresh(self): ...",
	})
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Session.refresh")
	assert.Contains(t, msgs[1].Content, "src/auth/login.py")
}

func TestOverviewPrompt(t *testing.T) {
	msgs := overviewPrompt([]store.SummaryCandidate{
		{Path: "a.py", Text: "Parses config."},
		{Path: "b.py", Text: "Serves HTTP."},
	})
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "a.py: Parses config.")
	assert.Contains(t, msgs[1].Content, "b.py: Serves HTTP.")
}

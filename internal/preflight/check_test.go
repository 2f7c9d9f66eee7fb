package preflight

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/config"
)

type fakeProvider struct {
	vecs [][]float32
	err  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs, nil
}

func TestCheckEmbeddingProvider(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Dimension = 3

	t.Run("pass", func(t *testing.T) {
		c := New(nil, cfg, WithProvider(&fakeProvider{vecs: [][]float32{{1, 2, 3}}}))
		result := c.CheckEmbeddingProvider(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "3 dimensions")
	})

	t.Run("unreachable is a warning", func(t *testing.T) {
		c := New(nil, cfg, WithProvider(&fakeProvider{err: errors.New("connection refused")}))
		result := c.CheckEmbeddingProvider(context.Background())
		assert.Equal(t, StatusWarn, result.Status)
		assert.False(t, result.IsCritical())
	})

	t.Run("dimension mismatch fails", func(t *testing.T) {
		c := New(nil, cfg, WithProvider(&fakeProvider{vecs: [][]float32{{1, 2}}}))
		result := c.CheckEmbeddingProvider(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "config says 3")
	})

	t.Run("missing provider is a warning", func(t *testing.T) {
		c := New(nil, cfg)
		result := c.CheckEmbeddingProvider(context.Background())
		assert.Equal(t, StatusWarn, result.Status)
	})
}

func TestCheckDatabaseNilStore(t *testing.T) {
	c := New(nil, config.NewConfig())
	assert.Equal(t, StatusFail, c.CheckDatabase(context.Background()).Status)
	assert.Equal(t, StatusFail, c.CheckVectorExtension(context.Background()).Status)
	assert.Equal(t, StatusFail, c.CheckMigrations(context.Background()).Status)
}

func TestCheckDiskSpace(t *testing.T) {
	c := New(nil, config.NewConfig())
	result := c.CheckDiskSpace(os.TempDir())
	assert.Equal(t, "disk_space", result.Name)
	assert.NotEmpty(t, result.Message)
}

func TestSummaryStatus(t *testing.T) {
	c := New(nil, config.NewConfig())

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{
		{Status: StatusPass, Required: true},
	}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{
		{Status: StatusPass, Required: true},
		{Status: StatusWarn},
	}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{
		{Status: StatusFail, Required: true},
	}))
	// optional failure is only a warning
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{
		{Status: StatusFail, Required: false},
	}))
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(nil, config.NewConfig(), WithOutput(&buf), WithVerbose(true))
	c.PrintResults([]CheckResult{
		{Name: "database", Status: StatusPass, Message: "connected", Required: true},
		{Name: "pgvector", Status: StatusFail, Message: "extension not installed",
			Details: "run CREATE EXTENSION vector", Required: true},
		{Name: "llm_provider", Status: StatusWarn, Message: "not configured"},
	})

	out := buf.String()
	require.Contains(t, out, "[PASS] database: connected")
	require.Contains(t, out, "[FAIL] pgvector")
	assert.Contains(t, out, "run CREATE EXTENSION vector")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):")
	assert.Contains(t, out, "1 warning(s):")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "2.5 GB", formatBytes(uint64(2.5*1024*1024*1024)))
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobTypeValid(t *testing.T) {
	for _, jt := range []JobType{
		JobFullIndex, JobReindexFile, JobReindexMany,
		JobEmbedMissing, JobEmbedChunk, JobEmbedSummaries,
		JobDocsScan, JobTagRulesSync,
		JobSummarizeMissing, JobSummarizeFiles, JobSummarizeSymbols,
		JobRegenerateSummary,
	} {
		assert.True(t, jt.Valid(), "%s", jt)
	}
	assert.False(t, JobType("NOT_A_JOB").Valid())
	assert.False(t, JobType("full_index").Valid(), "job types are case-sensitive")
}

func TestJobTypeDefaultPriorities(t *testing.T) {
	// The dependency chain runs at strictly decreasing priority so
	// earlier stages drain first. Exact values, not just ordering: the
	// queue claim sorts on these numbers.
	want := map[JobType]int{
		JobFullIndex:         10,
		JobReindexFile:       9,
		JobReindexMany:       9,
		JobDocsScan:          9,
		JobTagRulesSync:      7,
		JobEmbedMissing:      5,
		JobEmbedChunk:        5,
		JobSummarizeMissing:  4,
		JobSummarizeFiles:    4,
		JobSummarizeSymbols:  4,
		JobEmbedSummaries:    3,
		JobRegenerateSummary: 2,
	}
	for jt, p := range want {
		assert.Equal(t, p, jt.DefaultPriority(), "%s", jt)
	}
	assert.Equal(t, 1, JobType("NOT_A_JOB").DefaultPriority())
}

func TestJobTypeRegistryCoversAllTypes(t *testing.T) {
	for _, jt := range []JobType{
		JobFullIndex, JobReindexFile, JobReindexMany,
		JobEmbedMissing, JobEmbedChunk, JobEmbedSummaries,
		JobDocsScan, JobTagRulesSync,
		JobSummarizeMissing, JobSummarizeFiles, JobSummarizeSymbols,
		JobRegenerateSummary,
	} {
		spec, ok := jobTypeSpecs[jt]
		assert.True(t, ok, "%s missing from registry", jt)
		assert.True(t, spec.RunsInRepoSchema, "%s", jt)
		assert.True(t, spec.IdempotentOnRetry, "%s", jt)
	}
}

func TestJobTypeDedupKey(t *testing.T) {
	assert.Equal(t, "FULL_INDEX:demo", JobFullIndex.DedupKey("demo", ""))
	assert.Equal(t, "DOCS_SCAN:demo", JobDocsScan.DedupKey("demo", "ignored-scope-free"))

	assert.Equal(t, "REINDEX_FILE:demo:src/main.py", JobReindexFile.DedupKey("demo", "src/main.py"))
	assert.Equal(t, "EMBED_MISSING:demo:chunks", JobEmbedMissing.DedupKey("demo", "chunks"))
	assert.Equal(t, "EMBED_SUMMARIES:demo:summaries", JobEmbedSummaries.DedupKey("demo", "summaries"))

	// A scoped template with no scope still dedups per repo.
	assert.Equal(t, "EMBED_MISSING:demo", JobEmbedMissing.DedupKey("demo", ""))

	assert.Equal(t, "", JobType("NOT_A_JOB").DedupKey("demo", "x"))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobClaimed.Terminal())
	assert.True(t, JobDone.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
}

func TestMarshalPayload(t *testing.T) {
	got, err := marshalPayload(nil)
	assert.NoError(t, err)
	assert.JSONEq(t, "{}", string(got))

	got, err = marshalPayload(map[string]any{"path": "main.go"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"path":"main.go"}`, string(got))
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "q.id, q.status", prefixColumns("q", "id, status"))
	assert.Equal(t, "j.a, j.b, j.c", prefixColumns("j", "a,\n\tb, c"))
}

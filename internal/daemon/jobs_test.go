package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/store"
)

func repoWithFlags(embed, summaries bool, tagRules string) *store.Repo {
	r := &store.Repo{Name: "demo", AutoEmbed: embed, AutoSummaries: summaries}
	if tagRules != "" {
		r.Config = map[string]string{"tag_rules": tagRules}
	}
	return r
}

func jobTypes(specs []store.JobSpec) []store.JobType {
	out := make([]store.JobType, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Type)
	}
	return out
}

func TestFollowUpsAfterFullIndex(t *testing.T) {
	t.Run("all flags on", func(t *testing.T) {
		repo := repoWithFlags(true, true, `[{"tag":"auth","pattern":"src/auth/**"}]`)
		types := jobTypes(followUpsFor(repo, store.JobFullIndex))
		assert.ElementsMatch(t, []store.JobType{
			store.JobDocsScan, store.JobTagRulesSync, store.JobEmbedMissing,
		}, types)
	})
	t.Run("flags off still scans docs", func(t *testing.T) {
		repo := repoWithFlags(false, false, "")
		types := jobTypes(followUpsFor(repo, store.JobFullIndex))
		assert.Equal(t, []store.JobType{store.JobDocsScan}, types)
	})
}

func TestFollowUpsAfterDocsScan(t *testing.T) {
	repo := repoWithFlags(true, true, "")
	types := jobTypes(followUpsFor(repo, store.JobDocsScan))
	assert.ElementsMatch(t, []store.JobType{
		store.JobEmbedMissing, store.JobSummarizeFiles, store.JobSummarizeSymbols,
	}, types)

	noSumm := repoWithFlags(true, false, "")
	types = jobTypes(followUpsFor(noSumm, store.JobDocsScan))
	assert.Equal(t, []store.JobType{store.JobEmbedMissing}, types)
}

func TestFollowUpsAfterSummaries(t *testing.T) {
	repo := repoWithFlags(true, true, "")
	types := jobTypes(followUpsFor(repo, store.JobSummarizeFiles))
	assert.ElementsMatch(t, []store.JobType{
		store.JobEmbedSummaries, store.JobRegenerateSummary,
	}, types)

	types = jobTypes(followUpsFor(repo, store.JobSummarizeSymbols))
	assert.Equal(t, []store.JobType{store.JobEmbedSummaries}, types)
}

func TestFollowUpsTerminalTypes(t *testing.T) {
	repo := repoWithFlags(true, true, "")
	assert.Empty(t, followUpsFor(repo, store.JobEmbedMissing))
	assert.Empty(t, followUpsFor(repo, store.JobRegenerateSummary))
	assert.Empty(t, followUpsFor(repo, store.JobReindexMany))
}

func TestFollowUpSpecsCarryDedupKeys(t *testing.T) {
	repo := repoWithFlags(true, true, "")
	for _, spec := range followUpsFor(repo, store.JobFullIndex) {
		assert.NotEmpty(t, spec.DedupKey, spec.Type)
		assert.Equal(t, "demo", spec.RepoName)
	}
}

func TestDecodePayload(t *testing.T) {
	job := &store.Job{Type: store.JobReindexMany,
		Payload: json.RawMessage(`{"ops":[{"path":"a.py","op":"UPSERT"},{"path":"b.py","op":"DELETE"}]}`)}
	var payload ReindexManyPayload
	require.NoError(t, decodePayload(job, &payload))
	require.Len(t, payload.Ops, 2)
	assert.Equal(t, indexer.OpDelete, payload.Ops[1].Op)

	empty := &store.Job{Type: store.JobDocsScan}
	require.NoError(t, decodePayload(empty, &payload))

	bad := &store.Job{Type: store.JobReindexMany, Payload: json.RawMessage(`{`)}
	require.Error(t, decodePayload(bad, &payload))
}

func TestEmbedTargetByName(t *testing.T) {
	target, ok := embedTargetByName("")
	require.True(t, ok)
	assert.Equal(t, store.TargetChunks, target)

	target, ok = embedTargetByName("documents")
	require.True(t, ok)
	assert.Equal(t, store.TargetDocuments, target)

	target, ok = embedTargetByName("summaries")
	require.True(t, ok)
	assert.Equal(t, store.TargetSummaries, target)

	_, ok = embedTargetByName("nope")
	assert.False(t, ok)
}

func TestOpsDigest(t *testing.T) {
	a := []indexer.FileOp{{Path: "a.py", Op: indexer.OpUpsert}}
	b := []indexer.FileOp{{Path: "b.py", Op: indexer.OpUpsert}}
	assert.Equal(t, opsDigest(a), opsDigest(a))
	assert.NotEqual(t, opsDigest(a), opsDigest(b))
	assert.Len(t, opsDigest(a), 16)
}

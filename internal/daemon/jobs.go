package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/codemaphq/codemap/internal/indexer"
	"github.com/codemaphq/codemap/internal/store"
)

// Job payloads. Every payload round-trips through the queue's JSONB
// column, so fields carry json tags and nothing else.

// FullIndexPayload records why a full index was scheduled.
type FullIndexPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ReindexFilePayload targets one path.
type ReindexFilePayload struct {
	Path string `json:"path"`
}

// ReindexManyPayload carries one debounced batch of file operations.
type ReindexManyPayload struct {
	Ops []indexer.FileOp `json:"ops"`
}

// EmbedPayload selects an embedding table and optionally overrides the
// model. Target is "chunks", "documents", or "summaries"; empty means
// chunks.
type EmbedPayload struct {
	Target string `json:"target,omitempty"`
	Model  string `json:"model,omitempty"`
}

// SummarizeFilesPayload targets specific files; empty means all
// missing.
type SummarizeFilesPayload struct {
	FileIDs []int64 `json:"file_ids,omitempty"`
}

// SummarizeSymbolsPayload targets specific symbols; empty means all
// missing.
type SummarizeSymbolsPayload struct {
	SymbolIDs []int64 `json:"symbol_ids,omitempty"`
}

func decodePayload(job *store.Job, into any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Type, err)
	}
	return nil
}

func embedTargetByName(name string) (store.EmbedTarget, bool) {
	switch name {
	case "", "chunks":
		return store.TargetChunks, true
	case "documents":
		return store.TargetDocuments, true
	case "summaries":
		return store.TargetSummaries, true
	}
	return store.EmbedTarget{}, false
}

// followUp is one edge in the job dependency graph: when a job of type
// From completes, Spec(repo) is enqueued if When(repo) holds.
type followUp struct {
	From store.JobType
	When func(*store.Repo) bool
	Spec func(*store.Repo) store.JobSpec
}

func always(*store.Repo) bool       { return true }
func autoEmbed(r *store.Repo) bool  { return r.AutoEmbed }
func autoSumm(r *store.Repo) bool   { return r.AutoSummaries }
func hasTagRules(r *store.Repo) bool {
	return r.Config["tag_rules"] != ""
}

func embedSpec(target string) func(*store.Repo) store.JobSpec {
	return func(r *store.Repo) store.JobSpec {
		jobType := store.JobEmbedMissing
		if target == "summaries" {
			jobType = store.JobEmbedSummaries
		}
		return store.JobSpec{
			RepoName: r.Name,
			Type:     jobType,
			Payload:  EmbedPayload{Target: target},
			DedupKey: jobType.DedupKey(r.Name, target),
		}
	}
}

func plainSpec(jobType store.JobType) func(*store.Repo) store.JobSpec {
	return func(r *store.Repo) store.JobSpec {
		return store.JobSpec{
			RepoName: r.Name,
			Type:     jobType,
			DedupKey: jobType.DedupKey(r.Name, ""),
		}
	}
}

// jobGraph wires the pipeline: a full index fans out to the docs scan,
// tag rules, and chunk embedding; the docs scan feeds document
// embedding and summarization; summaries feed their own embedding and
// the repo overview. Gates keep disabled stages out of the queue
// entirely.
var jobGraph = []followUp{
	{From: store.JobFullIndex, When: always, Spec: plainSpec(store.JobDocsScan)},
	{From: store.JobFullIndex, When: hasTagRules, Spec: plainSpec(store.JobTagRulesSync)},
	{From: store.JobFullIndex, When: autoEmbed, Spec: embedSpec("chunks")},

	{From: store.JobDocsScan, When: autoEmbed, Spec: embedSpec("documents")},
	{From: store.JobDocsScan, When: autoSumm, Spec: plainSpec(store.JobSummarizeFiles)},
	{From: store.JobDocsScan, When: autoSumm, Spec: plainSpec(store.JobSummarizeSymbols)},

	{From: store.JobSummarizeFiles, When: autoEmbed, Spec: embedSpec("summaries")},
	{From: store.JobSummarizeFiles, When: autoSumm, Spec: plainSpec(store.JobRegenerateSummary)},
	{From: store.JobSummarizeSymbols, When: autoEmbed, Spec: embedSpec("summaries")},

	{From: store.JobSummarizeMissing, When: autoEmbed, Spec: embedSpec("summaries")},
	{From: store.JobSummarizeMissing, When: autoSumm, Spec: plainSpec(store.JobRegenerateSummary)},
}

// followUpsFor returns the specs to enqueue after jobType finished for
// repo.
func followUpsFor(repo *store.Repo, jobType store.JobType) []store.JobSpec {
	var specs []store.JobSpec
	for _, f := range jobGraph {
		if f.From == jobType && f.When(repo) {
			specs = append(specs, f.Spec(repo))
		}
	}
	return specs
}

package daemon

import (
	"context"
	"fmt"
	"strings"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/llm"
	"github.com/codemaphq/codemap/internal/parser"
	"github.com/codemaphq/codemap/internal/store"
)

const (
	summarizeSystemPrompt = "You are a code documentation assistant. Summarize the given code " +
		"in two or three sentences: what it does, the key entry points, and anything a caller " +
		"must know. Answer with the summary only, no preamble."

	overviewSystemPrompt = "You are a code documentation assistant. Given per-file summaries of " +
		"a repository, write a short overview (at most two paragraphs): the system's purpose, " +
		"its main components, and how they fit together. Answer with the overview only."

	// summarizeBatch bounds candidates per job run; leftovers are
	// picked up by the next SUMMARIZE_* job.
	summarizeBatch = 50
)

func filePrompt(c store.SummaryCandidate) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("File: %s\n\n%s", c.Path, c.Text)},
	}
}

func symbolPrompt(c store.SummaryCandidate) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Symbol %s in %s:\n\n%s", c.Name, c.Path, c.Text)},
	}
}

func overviewPrompt(files []store.SummaryCandidate) []llm.Message {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s: %s\n", f.Path, f.Text)
	}
	return []llm.Message{
		{Role: "system", Content: overviewSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// summarizeCandidates runs each candidate through the completer and
// stores the result. The stored content hash lets a later upsert tell
// whether the source changed and the embedding must be redone.
func (d *Daemon) summarizeCandidates(ctx context.Context, job *store.Job, repo *store.Repo, cands []store.SummaryCandidate, prompt func(store.SummaryCandidate) []llm.Message) error {
	if d.completer == nil {
		return cmerrors.ProviderFatal("no llm provider configured", nil)
	}
	probe := d.cancellationProbe(ctx, job.ID)
	model := d.cfg.LLM.Model
	written := 0
	for _, c := range cands {
		if probe() {
			return cmerrors.Cancelled("summarization interrupted")
		}
		hash := parser.HashContent(c.Text)
		content, err := d.completer.Complete(ctx, model, prompt(c))
		if err != nil {
			return err
		}
		err = d.store.UpsertSummary(ctx, repo.SchemaName, &store.Summary{
			TargetKind:  c.TargetKind,
			TargetID:    c.TargetID,
			Content:     content,
			ContentHash: hash,
			Model:       model,
		})
		if err != nil {
			return err
		}
		written++
	}
	d.logger.Info("summaries written",
		"repo", repo.Name, "candidates", len(cands), "written", written)
	return nil
}

func (d *Daemon) handleSummarizeFiles(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload SummarizeFilesPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	cands, err := d.store.FilesNeedingSummaries(ctx, repo.SchemaName, payload.FileIDs, summarizeBatch)
	if err != nil {
		return err
	}
	return d.summarizeCandidates(ctx, job, repo, cands, filePrompt)
}

func (d *Daemon) handleSummarizeSymbols(ctx context.Context, job *store.Job, repo *store.Repo) error {
	var payload SummarizeSymbolsPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	cands, err := d.store.SymbolsNeedingSummaries(ctx, repo.SchemaName, payload.SymbolIDs, summarizeBatch)
	if err != nil {
		return err
	}
	return d.summarizeCandidates(ctx, job, repo, cands, symbolPrompt)
}

// handleSummarizeMissing covers both kinds in one sweep.
func (d *Daemon) handleSummarizeMissing(ctx context.Context, job *store.Job, repo *store.Repo) error {
	files, err := d.store.FilesNeedingSummaries(ctx, repo.SchemaName, nil, summarizeBatch)
	if err != nil {
		return err
	}
	if err := d.summarizeCandidates(ctx, job, repo, files, filePrompt); err != nil {
		return err
	}
	symbols, err := d.store.SymbolsNeedingSummaries(ctx, repo.SchemaName, nil, summarizeBatch)
	if err != nil {
		return err
	}
	return d.summarizeCandidates(ctx, job, repo, symbols, symbolPrompt)
}

// handleRegenerateSummary rebuilds the repo-level overview from the
// file summaries.
func (d *Daemon) handleRegenerateSummary(ctx context.Context, job *store.Job, repo *store.Repo) error {
	if d.completer == nil {
		return cmerrors.ProviderFatal("no llm provider configured", nil)
	}
	files, err := d.store.FileSummariesForOverview(ctx, repo.SchemaName, 200)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		d.logger.Info("no file summaries yet, skipping overview", "repo", repo.Name)
		return nil
	}
	messages := overviewPrompt(files)
	hash := parser.HashContent(messages[1].Content)
	if existing, err := d.store.GetSummary(ctx, repo.SchemaName, store.SummaryTargetRepo, 0); err != nil {
		return err
	} else if existing != nil && existing.ContentHash == hash {
		return nil
	}
	model := d.cfg.LLM.Model
	content, err := d.completer.Complete(ctx, model, messages)
	if err != nil {
		return err
	}
	return d.store.UpsertSummary(ctx, repo.SchemaName, &store.Summary{
		TargetKind:  store.SummaryTargetRepo,
		TargetID:    0,
		Content:     content,
		ContentHash: hash,
		Model:       model,
	})
}

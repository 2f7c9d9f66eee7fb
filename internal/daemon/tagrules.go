package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/gitignore"
	"github.com/codemaphq/codemap/internal/store"
)

// TagRule is one entry of the repo's tag_rules config: paths matching
// Pattern (gitignore-style glob) get Tag on the named entity type.
type TagRule struct {
	Tag        string `json:"tag"`
	Pattern    string `json:"pattern"`
	EntityType string `json:"entity_type"` // "file" or "chunk"
}

// parseTagRules decodes the repo config's tag_rules JSON.
func parseTagRules(raw string) ([]TagRule, error) {
	if raw == "" {
		return nil, nil
	}
	var rules []TagRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("decode tag_rules: %w", err)
	}
	for i, r := range rules {
		if r.Tag == "" || r.Pattern == "" {
			return nil, fmt.Errorf("tag_rules[%d]: tag and pattern are required", i)
		}
		switch r.EntityType {
		case "", "file", "chunk":
		default:
			return nil, fmt.Errorf("tag_rules[%d]: unknown entity_type %q", i, r.EntityType)
		}
	}
	return rules, nil
}

// matchRule tests a repo-relative path against a rule pattern.
func matchRule(pattern, path string) bool {
	m := gitignore.New()
	m.AddPattern(pattern)
	return m.Match(path, false)
}

// handleTagRulesSync applies the repo's configured tag rules. Tagging
// is an upsert keyed on (tag, entity), so reruns converge instead of
// stacking rows.
func (d *Daemon) handleTagRulesSync(ctx context.Context, job *store.Job, repo *store.Repo) error {
	rules, err := parseTagRules(repo.Config["tag_rules"])
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	files, err := d.store.FilesForTagRules(ctx, repo.SchemaName)
	if err != nil {
		return err
	}
	probe := d.cancellationProbe(ctx, job.ID)

	applied := 0
	for _, rule := range rules {
		if probe() {
			return cmerrors.Cancelled("tag rules sync interrupted")
		}
		tag, err := d.store.EnsureTag(ctx, repo.SchemaName, rule.Tag, rule.Pattern)
		if err != nil {
			return err
		}

		matcher := gitignore.New()
		matcher.AddPattern(rule.Pattern)
		var matchedFiles []int64
		for id, path := range files {
			if matcher.Match(path, false) {
				matchedFiles = append(matchedFiles, id)
			}
		}

		switch rule.EntityType {
		case "", "file":
			for _, fileID := range matchedFiles {
				if err := d.store.TagEntity(ctx, repo.SchemaName, tag.ID, "file", fileID, 1.0, store.TagSourceRule); err != nil {
					return err
				}
				applied++
			}
		case "chunk":
			chunks, err := d.store.ChunkIDsForFiles(ctx, repo.SchemaName, matchedFiles)
			if err != nil {
				return err
			}
			for _, ids := range chunks {
				for _, chunkID := range ids {
					if err := d.store.TagEntity(ctx, repo.SchemaName, tag.ID, "chunk", chunkID, 1.0, store.TagSourceRule); err != nil {
						return err
					}
					applied++
				}
			}
		}
	}
	d.logger.Info("tag rules applied", "repo", repo.Name, "rules", len(rules), "entities", applied)
	return nil
}

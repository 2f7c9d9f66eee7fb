package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// UpsertSummary stores or replaces the summary for one target. A
// changed content_hash drops the stale summary embedding so
// EMBED_SUMMARIES picks the row back up.
func (s *Store) UpsertSummary(ctx context.Context, schema string, sum *Summary) error {
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		var oldID int64
		var oldHash string
		err := tx.QueryRow(ctx,
			"SELECT id, content_hash FROM summaries WHERE target_kind = $1 AND target_id = $2",
			sum.TargetKind, sum.TargetID,
		).Scan(&oldID, &oldHash)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if err := tx.QueryRow(ctx, `INSERT INTO summaries (target_kind, target_id, content, content_hash, model, generated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (target_kind, target_id) DO UPDATE SET
				content = EXCLUDED.content, content_hash = EXCLUDED.content_hash,
				model = EXCLUDED.model, generated_at = now()
			RETURNING id`,
			sum.TargetKind, sum.TargetID, sum.Content, sum.ContentHash, sum.Model,
		).Scan(&sum.ID); err != nil {
			return err
		}

		if oldID != 0 && oldHash != sum.ContentHash {
			_, err = tx.Exec(ctx, "DELETE FROM summary_embeddings WHERE summary_id = $1", oldID)
			return err
		}
		return nil
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// GetSummary fetches the summary for one target, nil when absent.
func (s *Store) GetSummary(ctx context.Context, schema string, kind SummaryTargetKind, targetID int64) (*Summary, error) {
	var sum Summary
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT id, target_kind, target_id, content, content_hash, model, generated_at
			FROM summaries WHERE target_kind = $1 AND target_id = $2`, kind, targetID,
		).Scan(&sum.ID, &sum.TargetKind, &sum.TargetID, &sum.Content, &sum.ContentHash, &sum.Model, &sum.GeneratedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, cmerrors.IOError("database", err)
	}
	return &sum, nil
}

// SummaryCandidate is one entity that needs a summary, with the text
// to summarize from.
type SummaryCandidate struct {
	TargetKind SummaryTargetKind
	TargetID   int64
	Path       string
	Name       string // symbol FQN, empty for files
	Text       string
}

// summaryTextCap bounds how much source text one summary prompt sees.
const summaryTextCap = 16_000

// FilesNeedingSummaries returns files without a summary row, with
// their chunk text concatenated in line order.
func (s *Store) FilesNeedingSummaries(ctx context.Context, schema string, ids []int64, limit int) ([]SummaryCandidate, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []SummaryCandidate
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT f.id, f.path, left(string_agg(c.content, E'\n' ORDER BY c.start_line), $3)
			FROM files f
			JOIN chunks c ON c.file_id = f.id
			LEFT JOIN summaries s ON s.target_kind = 'file' AND s.target_id = f.id
			WHERE s.id IS NULL AND (cardinality($1::bigint[]) = 0 OR f.id = ANY($1))
			GROUP BY f.id, f.path
			ORDER BY f.path
			LIMIT $2`, idArray(ids), limit, summaryTextCap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c := SummaryCandidate{TargetKind: SummaryTargetFile}
			if err := rows.Scan(&c.TargetID, &c.Path, &c.Text); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// SymbolsNeedingSummaries returns top-level symbols (those owning a
// chunk) without a summary row.
func (s *Store) SymbolsNeedingSummaries(ctx context.Context, schema string, ids []int64, limit int) ([]SummaryCandidate, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []SummaryCandidate
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT sym.id, f.path, sym.fqn, left(c.content, $3)
			FROM symbols sym
			JOIN files f ON f.id = sym.file_id
			JOIN chunks c ON c.symbol_id = sym.id
			LEFT JOIN summaries s ON s.target_kind = 'symbol' AND s.target_id = sym.id
			WHERE s.id IS NULL AND (cardinality($1::bigint[]) = 0 OR sym.id = ANY($1))
			ORDER BY f.path, sym.start_line
			LIMIT $2`, idArray(ids), limit, summaryTextCap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c := SummaryCandidate{TargetKind: SummaryTargetSymbol}
			if err := rows.Scan(&c.TargetID, &c.Path, &c.Name, &c.Text); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// FileSummariesForOverview collects existing file summaries to feed
// the repo-level overview prompt.
func (s *Store) FileSummariesForOverview(ctx context.Context, schema string, limit int) ([]SummaryCandidate, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []SummaryCandidate
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT s.target_id, f.path, s.content
			FROM summaries s
			JOIN files f ON f.id = s.target_id
			WHERE s.target_kind = 'file'
			ORDER BY f.path
			LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c := SummaryCandidate{TargetKind: SummaryTargetFile}
			if err := rows.Scan(&c.TargetID, &c.Path, &c.Text); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

func idArray(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

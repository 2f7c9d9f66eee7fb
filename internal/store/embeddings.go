package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// Vector-index sizing. Small tables get IVFFlat with lists scaled to the
// row count; past hnswRowThreshold rows HNSW wins on recall and build
// time no longer dominates.
const (
	hnswRowThreshold   = 100_000
	ivfMinLists        = 10
	hnswM              = 16
	hnswEfConstruction = 64
)

func embedContentColumn(target EmbedTarget) string {
	if target.EntityTable == "documents" {
		return "title || ' ' || content"
	}
	return "content"
}

// PendingEmbeddings returns entities that have no embedding row yet,
// oldest first.
func (s *Store) PendingEmbeddings(ctx context.Context, schema string, target EmbedTarget, limit int) ([]PendingText, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := fmt.Sprintf(`SELECT e.id, e.content_hash, %s
		FROM %s e
		LEFT JOIN %s emb ON emb.%s = e.id
		WHERE emb.%s IS NULL
		ORDER BY e.id
		LIMIT $1`,
		embedContentColumn(target), target.EntityTable, target.Table, target.EntityID, target.EntityID)

	var pending []PendingText
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p PendingText
			if err := rows.Scan(&p.EntityID, &p.ContentHash, &p.Content); err != nil {
				return err
			}
			pending = append(pending, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return pending, nil
}

// CountPendingEmbeddings returns how many entities still lack a vector.
func (s *Store) CountPendingEmbeddings(ctx context.Context, schema string, target EmbedTarget) (int64, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s e
		LEFT JOIN %s emb ON emb.%s = e.id
		WHERE emb.%s IS NULL`,
		target.EntityTable, target.Table, target.EntityID, target.EntityID)
	var n int64
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query).Scan(&n)
	})
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return n, nil
}

// ReuseEmbeddingsByHash copies vectors onto entities whose content_hash
// already has an embedded sibling, without touching the provider. Returns
// the number of rows written.
func (s *Store) ReuseEmbeddingsByHash(ctx context.Context, schema string, target EmbedTarget) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %[1]s (%[2]s, embedding, model_name, content_hash)
		SELECT DISTINCT ON (e.id) e.id, src.embedding, src.model_name, e.content_hash
		FROM %[3]s e
		JOIN %[1]s src ON src.content_hash = e.content_hash
		LEFT JOIN %[1]s mine ON mine.%[2]s = e.id
		WHERE mine.%[2]s IS NULL
		ORDER BY e.id, src.created_at DESC
		ON CONFLICT (%[2]s) DO NOTHING`,
		target.Table, target.EntityID, target.EntityTable)

	var copied int64
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query)
		if err != nil {
			return err
		}
		copied = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return copied, nil
}

// EmbeddingRow is one vector ready to persist.
type EmbeddingRow struct {
	EntityID    int64
	ContentHash string
	Vector      pgvector.Vector
	ModelName   string
}

// InsertEmbeddings writes a batch of vectors. Conflicting rows are left
// alone so a retried job cannot corrupt earlier work.
func (s *Store) InsertEmbeddings(ctx context.Context, schema string, target EmbedTarget, rows []EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}
	insert := fmt.Sprintf(`INSERT INTO %s (%s, embedding, model_name, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (%s) DO NOTHING`, target.Table, target.EntityID, target.EntityID)

	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(insert, r.EntityID, r.Vector, r.ModelName, r.ContentHash)
		}
		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// CountEmbeddings returns the embedding table's row count.
func (s *Store) CountEmbeddings(ctx context.Context, schema string, target EmbedTarget) (int64, error) {
	var n int64
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", target.Table)).Scan(&n)
	})
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return n, nil
}

// TruncateEmbeddings clears an embedding table, optionally dropping its
// ANN index, for reembed after a model or dimension change.
func (s *Store) TruncateEmbeddings(ctx context.Context, schema string, target EmbedTarget, dropIndex bool) error {
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE %s", target.Table)); err != nil {
			return err
		}
		if dropIndex {
			if _, err := tx.Exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", annIndexName(target))); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx,
			"DELETE FROM vector_index_state WHERE table_name = $1", target.Table)
		return err
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

func annIndexName(target EmbedTarget) string {
	return target.Table + "_ann_idx"
}

// RecommendedIndexKind returns the ANN index kind maintenance would
// build for the given row count.
func RecommendedIndexKind(rows int64) string {
	if rows >= hnswRowThreshold {
		return "hnsw"
	}
	return "ivfflat"
}

func annCreateSQL(target EmbedTarget, kind string, rowCount int64) string {
	if kind == "hnsw" {
		return fmt.Sprintf(
			"CREATE INDEX %s ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)",
			annIndexName(target), target.Table, hnswM, hnswEfConstruction)
	}
	lists := int(math.Sqrt(float64(rowCount)))
	if lists < ivfMinLists {
		lists = ivfMinLists
	}
	return fmt.Sprintf(
		"CREATE INDEX %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)",
		annIndexName(target), target.Table, lists)
}

// ForceVectorIndex drops and recreates the ANN index on an embedding
// table with an explicit kind, overriding the row-count heuristic. Runs
// under the same advisory lock as MaintainVectorIndex.
func (s *Store) ForceVectorIndex(ctx context.Context, schema string, target EmbedTarget, kind string) error {
	if kind != "ivfflat" && kind != "hnsw" {
		return cmerrors.InvalidInput(fmt.Sprintf("unknown index kind %q, want ivfflat or hnsw", kind))
	}
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		lockKey := schema + "." + target.Table
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey); err != nil {
			return err
		}

		var rowCount int64
		if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", target.Table)).Scan(&rowCount); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", annIndexName(target))); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, annCreateSQL(target, kind, rowCount)); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `INSERT INTO vector_index_state (table_name, index_kind, rows_at_build, built_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (table_name) DO UPDATE SET
				index_kind = EXCLUDED.index_kind, rows_at_build = EXCLUDED.rows_at_build, built_at = now()`,
			target.Table, kind, rowCount)
		if err != nil {
			return err
		}
		s.logger.Info("vector index switched",
			"schema", schema, "table", target.Table, "kind", kind, "rows", rowCount)
		return nil
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// MaintainVectorIndex rebuilds the ANN index on an embedding table when
// enough rows accumulated since the last build: no index yet and rows > 0,
// or inserts since the last build exceed rebuildThreshold (a fraction,
// e.g. 0.2). IVFFlat with lists = max(10, sqrt(N)) below 100k rows, HNSW
// (m=16, ef_construction=64) at or above. The whole rebuild runs under a
// transaction-scoped advisory lock keyed on schema and table so concurrent
// embed jobs cannot double-build.
func (s *Store) MaintainVectorIndex(ctx context.Context, schema string, target EmbedTarget, rebuildThreshold float64) (rebuilt bool, err error) {
	err = s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		lockKey := schema + "." + target.Table
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey); err != nil {
			return err
		}

		var rowCount int64
		if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", target.Table)).Scan(&rowCount); err != nil {
			return err
		}
		if rowCount == 0 {
			return nil
		}

		var rowsAtBuild int64
		var indexKind string
		err := tx.QueryRow(ctx,
			"SELECT rows_at_build, index_kind FROM vector_index_state WHERE table_name = $1",
			target.Table).Scan(&rowsAtBuild, &indexKind)
		hasState := true
		if errors.Is(err, pgx.ErrNoRows) {
			hasState = false
		} else if err != nil {
			return err
		}

		wantKind := "ivfflat"
		if rowCount >= hnswRowThreshold {
			wantKind = "hnsw"
		}

		if hasState && indexKind == wantKind && rowsAtBuild > 0 {
			grown := float64(rowCount-rowsAtBuild) / float64(rowsAtBuild)
			if grown < rebuildThreshold {
				return nil
			}
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", annIndexName(target))); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, annCreateSQL(target, wantKind, rowCount)); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO vector_index_state (table_name, index_kind, rows_at_build, built_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (table_name) DO UPDATE SET
				index_kind = EXCLUDED.index_kind, rows_at_build = EXCLUDED.rows_at_build, built_at = now()`,
			target.Table, wantKind, rowCount)
		if err != nil {
			return err
		}
		rebuilt = true
		s.logger.Info("vector index rebuilt",
			"schema", schema, "table", target.Table, "kind", wantKind, "rows", rowCount)
		return nil
	})
	if err != nil {
		return false, cmerrors.IOError("database", err)
	}
	return rebuilt, nil
}

// VectorIndexStates reports the ANN index bookkeeping for one repo
// schema, together with the current row count per embedding table.
func (s *Store) VectorIndexStates(ctx context.Context, schema string) ([]VectorIndexState, error) {
	var states []VectorIndexState
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT table_name, index_kind, rows_at_build, built_at FROM vector_index_state ORDER BY table_name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var st VectorIndexState
			if err := rows.Scan(&st.TableName, &st.IndexKind, &st.RowsAtBuild, &st.BuiltAt); err != nil {
				return err
			}
			states = append(states, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return states, nil
}

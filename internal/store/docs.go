package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// UpsertDocument stores one knowledge-base document. Unchanged content
// (same hash) is a no-op so DOCS_SCAN stays idempotent; changed content
// drops the stale embedding.
func (s *Store) UpsertDocument(ctx context.Context, schema string, doc *Document) (changed bool, err error) {
	err = s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		var existingID int64
		var existingHash string
		err := tx.QueryRow(ctx, "SELECT id, content_hash FROM documents WHERE path = $1", doc.Path).
			Scan(&existingID, &existingHash)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// fall through to insert
		case err != nil:
			return err
		case existingHash == doc.ContentHash:
			doc.ID = existingID
			return nil
		}

		err = tx.QueryRow(ctx, `INSERT INTO documents (path, doc_type, title, content, content_hash, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (path) DO UPDATE SET
				doc_type = EXCLUDED.doc_type, title = EXCLUDED.title,
				content = EXCLUDED.content, content_hash = EXCLUDED.content_hash, updated_at = now()
			RETURNING id`,
			doc.Path, doc.DocType, doc.Title, doc.Content, doc.ContentHash,
		).Scan(&doc.ID)
		if err != nil {
			return err
		}
		changed = true
		_, err = tx.Exec(ctx, "DELETE FROM document_embeddings WHERE document_id = $1", doc.ID)
		return err
	})
	if err != nil {
		return false, cmerrors.IOError("database", err)
	}
	return changed, nil
}

// DeleteDocumentsNotIn removes documents whose paths left the repo.
func (s *Store) DeleteDocumentsNotIn(ctx context.Context, schema string, keepPaths []string) (int64, error) {
	var removed int64
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM documents WHERE NOT (path = ANY($1))", keepPaths)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return removed, nil
}

// GetDocument fetches one document by path.
func (s *Store) GetDocument(ctx context.Context, schema, path string) (*Document, error) {
	var d Document
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT id, path, doc_type, title, content, content_hash, updated_at
			FROM documents WHERE path = $1`, path,
		).Scan(&d.ID, &d.Path, &d.DocType, &d.Title, &d.Content, &d.ContentHash, &d.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cmerrors.InvalidInput(fmt.Sprintf("document not indexed: %s", path))
		}
		return nil, cmerrors.IOError("database", err)
	}
	return &d, nil
}

// ListDocuments returns documents ordered by path.
func (s *Store) ListDocuments(ctx context.Context, schema string, limit int) ([]*Document, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var docs []*Document
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, path, doc_type, title, content, content_hash, updated_at
			FROM documents ORDER BY path LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d Document
			if err := rows.Scan(&d.ID, &d.Path, &d.DocType, &d.Title, &d.Content, &d.ContentHash, &d.UpdatedAt); err != nil {
				return err
			}
			docs = append(docs, &d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return docs, nil
}

// EnsureTag upserts a tag by name and returns its row.
func (s *Store) EnsureTag(ctx context.Context, schema, name, rule string) (*Tag, error) {
	var t Tag
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO tags (name, rule) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET rule = EXCLUDED.rule
			RETURNING id, name, rule, created_at`, name, rule,
		).Scan(&t.ID, &t.Name, &t.Rule, &t.CreatedAt)
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return &t, nil
}

// ListTags returns all tags in a repo schema.
func (s *Store) ListTags(ctx context.Context, schema string) ([]*Tag, error) {
	var tags []*Tag
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "SELECT id, name, rule, created_at FROM tags ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t Tag
			if err := rows.Scan(&t.ID, &t.Name, &t.Rule, &t.CreatedAt); err != nil {
				return err
			}
			tags = append(tags, &t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return tags, nil
}

// TagEntity attaches a tag to an entity. Idempotent: retagging the same
// pair refreshes confidence and source.
func (s *Store) TagEntity(ctx context.Context, schema string, tagID int64, entityType string, entityID int64, confidence float64, source TagSource) error {
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO entity_tags (tag_id, entity_type, entity_id, confidence, source)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tag_id, entity_type, entity_id) DO UPDATE SET
				confidence = EXCLUDED.confidence, source = EXCLUDED.source`,
			tagID, entityType, entityID, confidence, source)
		return err
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// UntagEntity removes one (tag, entity) pair.
func (s *Store) UntagEntity(ctx context.Context, schema string, tagID int64, entityType string, entityID int64) error {
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"DELETE FROM entity_tags WHERE tag_id = $1 AND entity_type = $2 AND entity_id = $3",
			tagID, entityType, entityID)
		return err
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// TagsForEntities returns entity id -> tag names for one entity type.
// Used to compute tag boosts over a candidate set in one round trip.
func (s *Store) TagsForEntities(ctx context.Context, schema, entityType string, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	if len(ids) == 0 {
		return out, nil
	}
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT et.entity_id, t.name
			FROM entity_tags et JOIN tags t ON t.id = et.tag_id
			WHERE et.entity_type = $1 AND et.entity_id = ANY($2)
			ORDER BY t.name`, entityType, ids)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				return err
			}
			out[id] = append(out[id], name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// FilesForTagRules returns (file id, path) pairs so TAG_RULES_SYNC can
// match rule patterns against paths.
func (s *Store) FilesForTagRules(ctx context.Context, schema string) (map[int64]string, error) {
	out := make(map[int64]string)
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "SELECT id, path FROM files")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var path string
			if err := rows.Scan(&id, &path); err != nil {
				return err
			}
			out[id] = path
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// ChunkIDsForFiles maps file ids to their chunk ids so rule tags can
// propagate from files to chunks.
func (s *Store) ChunkIDsForFiles(ctx context.Context, schema string, fileIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	if len(fileIDs) == 0 {
		return out, nil
	}
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "SELECT file_id, id FROM chunks WHERE file_id = ANY($1)", fileIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var fileID, chunkID int64
			if err := rows.Scan(&fileID, &chunkID); err != nil {
				return err
			}
			out[fileID] = append(out[fileID], chunkID)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

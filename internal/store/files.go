package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// IngestChunk is a chunk plus the index of its owning symbol within the
// same FileIngest. SymbolIdx -1 means file scope (header and prose chunks).
type IngestChunk struct {
	Chunk
	SymbolIdx int
}

// IngestRef is an unresolved outgoing reference recorded at parse time.
// Resolution to a symbol id happens after the whole repo is ingested.
type IngestRef struct {
	FromSymbolIdx int
	ToName        string
	Type          EdgeType
	Line          int
}

// FileIngest is everything the parser extracted from one file.
type FileIngest struct {
	Path     string
	Language string
	SHA      string
	Size     int64
	Symbols  []Symbol
	Chunks   []IngestChunk
	Refs     []IngestRef
}

// ApplyFileIngest replaces one file's rows in a single transaction:
// upsert the file, drop its old symbols/chunks/edges (and the summaries
// and tags hanging off them), insert the new extraction. Embeddings for
// unchanged chunk hashes are recovered later by hash reuse, so replacing
// rows here does not force re-embedding identical content.
func (s *Store) ApplyFileIngest(ctx context.Context, schema string, ing *FileIngest) (int64, error) {
	var fileID int64
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO files (path, language, sha, size, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (path) DO UPDATE SET
				language = EXCLUDED.language, sha = EXCLUDED.sha,
				size = EXCLUDED.size, updated_at = now()
			RETURNING id`,
			ing.Path, ing.Language, ing.SHA, ing.Size,
		).Scan(&fileID)
		if err != nil {
			return fmt.Errorf("upsert file %s: %w", ing.Path, err)
		}

		cleanup := []string{
			`DELETE FROM summaries WHERE target_kind = 'symbol'
				AND target_id IN (SELECT id FROM symbols WHERE file_id = $1)`,
			`DELETE FROM entity_tags WHERE entity_type = 'chunk'
				AND entity_id IN (SELECT id FROM chunks WHERE file_id = $1)`,
			`DELETE FROM chunks WHERE file_id = $1`,
			`DELETE FROM symbols WHERE file_id = $1`,
		}
		for _, stmt := range cleanup {
			if _, err := tx.Exec(ctx, stmt, fileID); err != nil {
				return fmt.Errorf("clear old rows for %s: %w", ing.Path, err)
			}
		}

		symbolIDs := make([]int64, len(ing.Symbols))
		if len(ing.Symbols) > 0 {
			batch := &pgx.Batch{}
			for _, sym := range ing.Symbols {
				batch.Queue(`INSERT INTO symbols
					(file_id, fqn, simple_name, kind, start_line, end_line, signature, language)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
					fileID, sym.FQN, sym.SimpleName, sym.Kind, sym.StartLine, sym.EndLine, sym.Signature, sym.Language)
			}
			br := tx.SendBatch(ctx, batch)
			for i := range ing.Symbols {
				if err := br.QueryRow().Scan(&symbolIDs[i]); err != nil {
					br.Close()
					return fmt.Errorf("insert symbols for %s: %w", ing.Path, err)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("insert symbols for %s: %w", ing.Path, err)
			}
		}

		if len(ing.Chunks) > 0 {
			batch := &pgx.Batch{}
			for _, ch := range ing.Chunks {
				var symbolID *int64
				if ch.SymbolIdx >= 0 {
					if ch.SymbolIdx >= len(symbolIDs) {
						return cmerrors.Internal(
							fmt.Sprintf("chunk references symbol %d of %d in %s", ch.SymbolIdx, len(symbolIDs), ing.Path), nil)
					}
					symbolID = &symbolIDs[ch.SymbolIdx]
				}
				batch.Queue(`INSERT INTO chunks
					(file_id, symbol_id, start_line, end_line, content, content_hash, language, kind)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
					fileID, symbolID, ch.StartLine, ch.EndLine, ch.Content, ch.ContentHash, ch.Language, ch.Kind)
			}
			br := tx.SendBatch(ctx, batch)
			for range ing.Chunks {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return fmt.Errorf("insert chunks for %s: %w", ing.Path, err)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("insert chunks for %s: %w", ing.Path, err)
			}
		}

		if len(ing.Refs) > 0 {
			batch := &pgx.Batch{}
			queued := 0
			for _, ref := range ing.Refs {
				if ref.FromSymbolIdx < 0 || ref.FromSymbolIdx >= len(symbolIDs) || ref.ToName == "" {
					continue
				}
				batch.Queue(`INSERT INTO edges
					(from_symbol_id, to_name, edge_type, evidence_file_id, evidence_line)
					VALUES ($1, $2, $3, $4, $5)`,
					symbolIDs[ref.FromSymbolIdx], ref.ToName, ref.Type, fileID, ref.Line)
				queued++
			}
			br := tx.SendBatch(ctx, batch)
			for i := 0; i < queued; i++ {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return fmt.Errorf("insert edges for %s: %w", ing.Path, err)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("insert edges for %s: %w", ing.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return fileID, nil
}

// ListFileShas returns path -> sha for every tracked file; the indexer's
// skip set.
func (s *Store) ListFileShas(ctx context.Context, schema string) (map[string]string, error) {
	shas := make(map[string]string)
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "SELECT path, sha FROM files")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var path, sha string
			if err := rows.Scan(&path, &sha); err != nil {
				return err
			}
			shas[path] = sha
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return shas, nil
}

// DeleteFileByPath removes a file and everything cascading from it.
// Returns false when the path was not tracked.
func (s *Store) DeleteFileByPath(ctx context.Context, schema, path string) (bool, error) {
	deleted := false
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		// summaries and entity_tags do not cascade from files
		pre := []string{
			`DELETE FROM summaries WHERE target_kind = 'symbol'
				AND target_id IN (SELECT s.id FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.path = $1)`,
			`DELETE FROM summaries WHERE target_kind = 'file'
				AND target_id IN (SELECT id FROM files WHERE path = $1)`,
			`DELETE FROM entity_tags WHERE entity_type = 'chunk'
				AND entity_id IN (SELECT c.id FROM chunks c JOIN files f ON f.id = c.file_id WHERE f.path = $1)`,
			`DELETE FROM entity_tags WHERE entity_type = 'file'
				AND entity_id IN (SELECT id FROM files WHERE path = $1)`,
		}
		for _, stmt := range pre {
			if _, err := tx.Exec(ctx, stmt, path); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, "DELETE FROM files WHERE path = $1", path)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, cmerrors.IOError("database", err)
	}
	return deleted, nil
}

// GetFileByPath fetches one file row.
func (s *Store) GetFileByPath(ctx context.Context, schema, path string) (*File, error) {
	var f File
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			"SELECT id, path, language, sha, size, updated_at FROM files WHERE path = $1", path,
		).Scan(&f.ID, &f.Path, &f.Language, &f.SHA, &f.Size, &f.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cmerrors.InvalidInput(fmt.Sprintf("file not indexed: %s", path))
		}
		return nil, cmerrors.IOError("database", err)
	}
	return &f, nil
}

// ListFiles returns tracked files under an optional path prefix.
func (s *Store) ListFiles(ctx context.Context, schema, prefix string, limit int) ([]*File, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var files []*File
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, path, language, sha, size, updated_at FROM files
			WHERE ($1 = '' OR path LIKE $1 || '%') ORDER BY path LIMIT $2`, prefix, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f File
			if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.SHA, &f.Size, &f.UpdatedAt); err != nil {
				return err
			}
			files = append(files, &f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return files, nil
}

// FileOutline returns a file's symbols ordered by position.
func (s *Store) FileOutline(ctx context.Context, schema, path string) (*File, []*Symbol, error) {
	file, err := s.GetFileByPath(ctx, schema, path)
	if err != nil {
		return nil, nil, err
	}
	var symbols []*Symbol
	err = s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, file_id, fqn, simple_name, kind, start_line, end_line, signature, language
			FROM symbols WHERE file_id = $1 ORDER BY start_line`, file.ID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sym Symbol
			if err := rows.Scan(&sym.ID, &sym.FileID, &sym.FQN, &sym.SimpleName, &sym.Kind,
				&sym.StartLine, &sym.EndLine, &sym.Signature, &sym.Language); err != nil {
				return err
			}
			symbols = append(symbols, &sym)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, cmerrors.IOError("database", err)
	}
	return file, symbols, nil
}

// SymbolWithPath pairs a symbol with its file path for display.
type SymbolWithPath struct {
	Symbol
	Path string `json:"path"`
}

// FindSymbols looks a name up as an exact FQN first, then by simple name.
func (s *Store) FindSymbols(ctx context.Context, schema, name string, limit int) ([]*SymbolWithPath, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*SymbolWithPath
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT s.id, s.file_id, s.fqn, s.simple_name, s.kind,
			s.start_line, s.end_line, s.signature, s.language, f.path
			FROM symbols s JOIN files f ON f.id = s.file_id
			WHERE s.fqn = $1 OR s.simple_name = $1
			ORDER BY (s.fqn = $1) DESC, s.fqn
			LIMIT $2`, name, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sym SymbolWithPath
			if err := rows.Scan(&sym.ID, &sym.FileID, &sym.FQN, &sym.SimpleName, &sym.Kind,
				&sym.StartLine, &sym.EndLine, &sym.Signature, &sym.Language, &sym.Path); err != nil {
				return err
			}
			out = append(out, &sym)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// ResolutionSymbol is the slim symbol projection the edge resolver loads.
type ResolutionSymbol struct {
	ID         int64
	FQN        string
	SimpleName string
	FileID     int64
}

// ListSymbolsForResolution loads every symbol's resolution key.
func (s *Store) ListSymbolsForResolution(ctx context.Context, schema string) ([]ResolutionSymbol, error) {
	var out []ResolutionSymbol
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "SELECT id, fqn, simple_name, file_id FROM symbols")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r ResolutionSymbol
			if err := rows.Scan(&r.ID, &r.FQN, &r.SimpleName, &r.FileID); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// UnresolvedEdge is one edge still pointing at a name.
type UnresolvedEdge struct {
	ID             int64
	ToName         string
	Type           EdgeType
	EvidenceFileID int64
}

// ListUnresolvedEdges loads edges whose target symbol is not yet known.
func (s *Store) ListUnresolvedEdges(ctx context.Context, schema string) ([]UnresolvedEdge, error) {
	var out []UnresolvedEdge
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT id, to_name, edge_type, evidence_file_id FROM edges WHERE to_symbol_id IS NULL AND to_name IS NOT NULL")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e UnresolvedEdge
			if err := rows.Scan(&e.ID, &e.ToName, &e.Type, &e.EvidenceFileID); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// ResolveEdges sets to_symbol_id for the given edge ids in one statement.
func (s *Store) ResolveEdges(ctx context.Context, schema string, targets map[int64]int64) (int64, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	edgeIDs := make([]int64, 0, len(targets))
	symbolIDs := make([]int64, 0, len(targets))
	for edgeID, symbolID := range targets {
		edgeIDs = append(edgeIDs, edgeID)
		symbolIDs = append(symbolIDs, symbolID)
	}

	var updated int64
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE edges SET to_symbol_id = u.symbol_id
			FROM unnest($1::bigint[], $2::bigint[]) AS u(edge_id, symbol_id)
			WHERE edges.id = u.edge_id`, edgeIDs, symbolIDs)
		if err != nil {
			return err
		}
		updated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return updated, nil
}

// EdgeNeighbor is one resolved relationship endpoint for callers/callees.
type EdgeNeighbor struct {
	Symbol SymbolWithPath `json:"symbol"`
	Type   EdgeType       `json:"edge_type"`
	Line   int            `json:"line"`
}

// Callers returns symbols with edges into the given symbol.
func (s *Store) Callers(ctx context.Context, schema string, symbolID int64, edgeType EdgeType) ([]EdgeNeighbor, error) {
	return s.edgeNeighbors(ctx, schema, symbolID, edgeType, true)
}

// Callees returns symbols the given symbol points at.
func (s *Store) Callees(ctx context.Context, schema string, symbolID int64, edgeType EdgeType) ([]EdgeNeighbor, error) {
	return s.edgeNeighbors(ctx, schema, symbolID, edgeType, false)
}

func (s *Store) edgeNeighbors(ctx context.Context, schema string, symbolID int64, edgeType EdgeType, incoming bool) ([]EdgeNeighbor, error) {
	join, where := "e.from_symbol_id", "e.to_symbol_id"
	if !incoming {
		join, where = "e.to_symbol_id", "e.from_symbol_id"
	}
	var typeFilter *string
	if edgeType != "" {
		str := string(edgeType)
		typeFilter = &str
	}

	var out []EdgeNeighbor
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT s.id, s.file_id, s.fqn, s.simple_name, s.kind,
			s.start_line, s.end_line, s.signature, s.language, f.path, e.edge_type, e.evidence_line
			FROM edges e
			JOIN symbols s ON s.id = %s
			JOIN files f ON f.id = s.file_id
			WHERE %s = $1 AND ($2::text IS NULL OR e.edge_type = $2)
			ORDER BY f.path, s.start_line`, join, where)
		rows, err := tx.Query(ctx, query, symbolID, typeFilter)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n EdgeNeighbor
			if err := rows.Scan(&n.Symbol.ID, &n.Symbol.FileID, &n.Symbol.FQN, &n.Symbol.SimpleName,
				&n.Symbol.Kind, &n.Symbol.StartLine, &n.Symbol.EndLine, &n.Symbol.Signature,
				&n.Symbol.Language, &n.Symbol.Path, &n.Type, &n.Line); err != nil {
				return err
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return out, nil
}

// RepoStats aggregates table counts for status surfaces.
type RepoStats struct {
	Files             int64 `json:"files"`
	Symbols           int64 `json:"symbols"`
	Chunks            int64 `json:"chunks"`
	Edges             int64 `json:"edges"`
	ResolvedEdges     int64 `json:"resolved_edges"`
	Documents         int64 `json:"documents"`
	Summaries         int64 `json:"summaries"`
	ChunkEmbeddings   int64 `json:"chunk_embeddings"`
	DocEmbeddings     int64 `json:"document_embeddings"`
	SummaryEmbeddings int64 `json:"summary_embeddings"`
}

// CollectRepoStats counts every repo-schema table in one round trip.
func (s *Store) CollectRepoStats(ctx context.Context, schema string) (*RepoStats, error) {
	var st RepoStats
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT
			(SELECT count(*) FROM files),
			(SELECT count(*) FROM symbols),
			(SELECT count(*) FROM chunks),
			(SELECT count(*) FROM edges),
			(SELECT count(*) FROM edges WHERE to_symbol_id IS NOT NULL),
			(SELECT count(*) FROM documents),
			(SELECT count(*) FROM summaries),
			(SELECT count(*) FROM chunk_embeddings),
			(SELECT count(*) FROM document_embeddings),
			(SELECT count(*) FROM summary_embeddings)`,
		).Scan(&st.Files, &st.Symbols, &st.Chunks, &st.Edges, &st.ResolvedEdges,
			&st.Documents, &st.Summaries, &st.ChunkEmbeddings, &st.DocEmbeddings, &st.SummaryEmbeddings)
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return &st, nil
}

// SetIndexState records the end of a FULL_INDEX in the repo schema.
func (s *Store) SetIndexState(ctx context.Context, schema, scanCommit string) error {
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO index_state (id, last_indexed_at, last_scan_commit)
			VALUES (TRUE, now(), $1)
			ON CONFLICT (id) DO UPDATE SET last_indexed_at = now(), last_scan_commit = EXCLUDED.last_scan_commit`,
			scanCommit)
		return err
	})
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// GetIndexState reads the repo's index bookkeeping row.
func (s *Store) GetIndexState(ctx context.Context, schema string) (*IndexState, error) {
	var st IndexState
	err := s.WithSchema(ctx, schema, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, "SELECT last_indexed_at, last_scan_commit FROM index_state WHERE id").
			Scan(&st.LastIndexedAt, &st.LastScanCommit)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return &st, nil
}

package embed

import (
	"context"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/codemaphq/codemap/internal/config"
	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

// Backend is the store surface the embedding service writes through.
type Backend interface {
	PendingEmbeddings(ctx context.Context, schema string, target store.EmbedTarget, limit int) ([]store.PendingText, error)
	CountPendingEmbeddings(ctx context.Context, schema string, target store.EmbedTarget) (int64, error)
	ReuseEmbeddingsByHash(ctx context.Context, schema string, target store.EmbedTarget) (int64, error)
	InsertEmbeddings(ctx context.Context, schema string, target store.EmbedTarget, rows []store.EmbeddingRow) error
	TruncateEmbeddings(ctx context.Context, schema string, target store.EmbedTarget, dropIndex bool) error
	MaintainVectorIndex(ctx context.Context, schema string, target store.EmbedTarget, rebuildThreshold float64) (bool, error)
	EmbeddingColumnDimension(ctx context.Context, schema string, target store.EmbedTarget) (int, error)
}

// Report summarizes one EmbedMissing run.
type Report struct {
	Embedded int   `json:"embedded"`
	Reused   int64 `json:"reused"`
	Batches  int   `json:"batches"`
	Rebuilt  bool  `json:"index_rebuilt"`
}

// Service drives the embedding pipeline for one provider/model pair.
type Service struct {
	backend  Backend
	provider Provider
	cfg      config.EmbeddingsConfig
	logger   *slog.Logger
}

func NewService(backend Backend, provider Provider, cfg config.EmbeddingsConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, provider: provider, cfg: cfg, logger: logger}
}

// EmbedMissing fills the embedding table for every row that lacks a
// vector. Hash reuse runs first so already-known content costs no
// provider call; the remainder is grouped by content hash (one call
// per distinct text) and written in batches. model overrides the
// configured default when non-empty; cancelled is polled per batch.
func (s *Service) EmbedMissing(ctx context.Context, schema string, target store.EmbedTarget, model string, cancelled func() bool) (*Report, error) {
	if s.provider == nil {
		return nil, cmerrors.ProviderFatal("no embedding provider configured", nil)
	}
	if model == "" {
		model = s.cfg.Model
	}
	report := &Report{}

	// Fail fast when the schema was created for a different dimension.
	colDim, err := s.backend.EmbeddingColumnDimension(ctx, schema, target)
	if err != nil {
		return nil, err
	}
	if colDim != s.cfg.Dimension {
		return nil, cmerrors.DimensionMismatch(target.Table, colDim, s.cfg.Dimension)
	}

	reused, err := s.backend.ReuseEmbeddingsByHash(ctx, schema, target)
	if err != nil {
		return nil, err
	}
	report.Reused = reused

	batchSize := s.cfg.EffectiveBatchSize()
	for {
		if cancelled != nil && cancelled() {
			return report, cmerrors.Cancelled("embedding run interrupted")
		}
		pending, err := s.backend.PendingEmbeddings(ctx, schema, target, batchSize*8)
		if err != nil {
			return report, err
		}
		if len(pending) == 0 {
			break
		}

		// One provider call per distinct hash; every row sharing the
		// hash gets the same vector.
		hashText := make(map[string]string)
		hashRows := make(map[string][]int64)
		var order []string
		for _, p := range pending {
			if _, seen := hashText[p.ContentHash]; !seen {
				hashText[p.ContentHash] = p.Content
				order = append(order, p.ContentHash)
			}
			hashRows[p.ContentHash] = append(hashRows[p.ContentHash], p.EntityID)
		}

		for start := 0; start < len(order); start += batchSize {
			if cancelled != nil && cancelled() {
				return report, cmerrors.Cancelled("embedding run interrupted")
			}
			end := start + batchSize
			if end > len(order) {
				end = len(order)
			}
			hashes := order[start:end]
			texts := make([]string, len(hashes))
			for i, h := range hashes {
				texts[i] = hashText[h]
			}

			vecs, err := s.provider.Embed(ctx, model, texts)
			if err != nil {
				return report, err
			}
			if len(vecs) != len(texts) {
				return report, cmerrors.ProviderFatal(s.provider.Name()+" returned wrong vector count", nil)
			}

			var rows []store.EmbeddingRow
			for i, h := range hashes {
				if len(vecs[i]) != s.cfg.Dimension {
					return report, cmerrors.DimensionMismatch(target.Table, s.cfg.Dimension, len(vecs[i]))
				}
				vec := pgvector.NewVector(vecs[i])
				for _, id := range hashRows[h] {
					rows = append(rows, store.EmbeddingRow{
						EntityID:    id,
						ContentHash: h,
						Vector:      vec,
						ModelName:   model,
					})
				}
			}
			if err := s.backend.InsertEmbeddings(ctx, schema, target, rows); err != nil {
				return report, err
			}
			report.Embedded += len(rows)
			report.Batches++
		}
	}

	rebuilt, err := s.backend.MaintainVectorIndex(ctx, schema, target, s.cfg.RebuildThreshold)
	if err != nil {
		s.logger.Warn("vector index maintenance failed",
			"schema", schema, "table", target.Table, "error", err)
	} else {
		report.Rebuilt = rebuilt
	}

	s.logger.Info("embedding run done",
		"schema", schema, "table", target.Table, "model", model,
		"embedded", report.Embedded, "reused", report.Reused,
		"batches", report.Batches, "index_rebuilt", report.Rebuilt)
	return report, nil
}

// ReembedTable wipes a table's vectors (optionally its ANN index) so a
// follow-up EmbedMissing repopulates it with the current model. The
// caller enqueues that follow-up at elevated priority.
func (s *Service) ReembedTable(ctx context.Context, schema string, target store.EmbedTarget, dropIndex bool) error {
	return s.backend.TruncateEmbeddings(ctx, schema, target, dropIndex)
}

// PendingCount reports how many rows still lack vectors.
func (s *Service) PendingCount(ctx context.Context, schema string, target store.EmbedTarget) (int64, error) {
	return s.backend.CountPendingEmbeddings(ctx, schema, target)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

const jobColumns = `id, repo_name, schema_name, job_type, payload, priority, status, attempts,
	max_attempts, dedup_key, claimed_by, claimed_at, started_at, completed_at, run_after,
	last_error, cancel_requested, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.RepoName, &j.SchemaName, &j.Type, &j.Payload, &j.Priority, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.DedupKey, &j.ClaimedBy, &j.ClaimedAt, &j.StartedAt,
		&j.CompletedAt, &j.RunAfter, &j.LastError, &j.CancelRequested, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue inserts a job. When spec.DedupKey is set and a non-terminal job
// already carries the same key, the existing job is returned unchanged and
// created is false.
func (s *Store) Enqueue(ctx context.Context, spec JobSpec) (job *Job, created bool, err error) {
	if !spec.Type.Valid() {
		return nil, false, cmerrors.InvalidInput(fmt.Sprintf("unknown job type %q", spec.Type))
	}

	repo, err := s.GetRepoByName(ctx, spec.RepoName)
	if err != nil {
		return nil, false, err
	}

	payload, err := marshalPayload(spec.Payload)
	if err != nil {
		return nil, false, cmerrors.InvalidInput("job payload is not serializable")
	}

	priority := spec.Priority
	if priority == 0 {
		priority = spec.Type.DefaultPriority()
	}
	maxAttempts := spec.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	var dedupKey *string
	if spec.DedupKey != "" {
		dedupKey = &spec.DedupKey
	}
	var runAfter *time.Time
	if !spec.RunAfter.IsZero() {
		runAfter = &spec.RunAfter
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, cmerrors.IOError("database", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if dedupKey != nil {
		existing, err := s.liveJobByDedupKey(ctx, tx, *dedupKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			if err := tx.Commit(ctx); err != nil {
				return nil, false, cmerrors.IOError("database", err)
			}
			return existing, false, nil
		}
	}

	insert := fmt.Sprintf(`INSERT INTO %s
		(id, repo_name, schema_name, job_type, payload, priority, max_attempts, dedup_key, run_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s`, s.controlTable("job_queue"), jobColumns)

	job, err = scanJob(tx.QueryRow(ctx, insert,
		uuid.New(), repo.Name, repo.SchemaName, spec.Type, payload, priority, maxAttempts, dedupKey, runAfter,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && dedupKey != nil {
			// Lost the dedup race to a concurrent enqueue. Roll back and
			// return the winner.
			_ = tx.Rollback(ctx)
			existing, lookupErr := s.liveJobByDedupKey(ctx, s.pool, *dedupKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, cmerrors.IOError("database", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, cmerrors.IOError("database", err)
	}
	s.logger.Debug("job enqueued",
		"job_id", job.ID, "repo", job.RepoName, "job_type", job.Type, "priority", job.Priority)
	return job, true, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) liveJobByDedupKey(ctx context.Context, q querier, key string) (*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE dedup_key = $1 AND status IN ('PENDING', 'CLAIMED')
		LIMIT 1`, jobColumns, s.controlTable("job_queue"))
	job, err := scanJob(q.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, cmerrors.IOError("database", err)
	}
	return job, nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", jobColumns, s.controlTable("job_queue"))
	job, err := scanJob(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cmerrors.InvalidInput(fmt.Sprintf("job %s not found", id))
		}
		return nil, cmerrors.IOError("database", err)
	}
	return job, nil
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	RepoName string
	Statuses []JobStatus
	Types    []JobType
	Limit    int
}

// ListJobs returns jobs newest-first, filtered.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]*Job, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var statuses, types []string
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	for _, t := range f.Types {
		types = append(types, string(t))
	}
	var repoFilter *string
	if f.RepoName != "" {
		repoFilter = &f.RepoName
	}

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE ($1::text IS NULL OR repo_name = $1)
		  AND ($2::text[] IS NULL OR status = ANY($2))
		  AND ($3::text[] IS NULL OR job_type = ANY($3))
		ORDER BY created_at DESC
		LIMIT $4`, jobColumns, s.controlTable("job_queue"))

	rows, err := s.pool.Query(ctx, query, repoFilter, statuses, types, limit)
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, cmerrors.IOError("database", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return jobs, nil
}

// ClaimOptions narrow what a worker may claim and carry the concurrency
// limits enforced inside the claim predicate.
type ClaimOptions struct {
	// RepoNames restricts claims to these repos. Empty means any.
	RepoNames []string
	// Types restricts claims to these job types. Empty means any.
	Types []JobType
	// PerRepoLimit caps CLAIMED jobs per repo. Zero disables the check.
	PerRepoLimit int
	// PerTypeLimits caps CLAIMED jobs per type. Missing types are unlimited.
	PerTypeLimits map[string]int
}

// Claim atomically claims the best eligible PENDING job for workerID.
// Eligibility: run_after elapsed, no CLAIMED/DONE dedup sibling, and the
// per-repo and per-type concurrency limits hold. Ordering is priority
// DESC, created_at ASC; FOR UPDATE SKIP LOCKED keeps racing workers
// wait-free. found is false when nothing is claimable.
func (s *Store) Claim(ctx context.Context, workerID string, opts ClaimOptions) (job *Job, found bool, err error) {
	var repoNames, typeNames []string
	if len(opts.RepoNames) > 0 {
		repoNames = opts.RepoNames
	}
	for _, t := range opts.Types {
		typeNames = append(typeNames, string(t))
	}
	perRepo := opts.PerRepoLimit
	if perRepo <= 0 {
		perRepo = 1 << 30
	}
	var limitTypes []string
	var limitValues []int
	for t, v := range opts.PerTypeLimits {
		limitTypes = append(limitTypes, t)
		limitValues = append(limitValues, v)
	}

	jq := s.controlTable("job_queue")
	query := fmt.Sprintf(`WITH candidate AS (
		SELECT j.id FROM %[1]s j
		WHERE j.status = 'PENDING'
		  AND (j.run_after IS NULL OR j.run_after <= now())
		  AND (j.dedup_key IS NULL OR NOT EXISTS (
		       SELECT 1 FROM %[1]s j2
		       WHERE j2.dedup_key = j.dedup_key
		         AND j2.status IN ('CLAIMED', 'DONE')
		         AND j2.id <> j.id))
		  AND ($2::text[] IS NULL OR j.repo_name = ANY($2))
		  AND ($3::text[] IS NULL OR j.job_type = ANY($3))
		  AND (SELECT count(*) FROM %[1]s r
		       WHERE r.repo_name = j.repo_name AND r.status = 'CLAIMED') < $4
		  AND NOT EXISTS (
		       SELECT 1 FROM unnest($5::text[], $6::int[]) AS lim(job_type, max_claimed)
		       WHERE lim.job_type = j.job_type
		         AND (SELECT count(*) FROM %[1]s t
		              WHERE t.job_type = j.job_type AND t.status = 'CLAIMED') >= lim.max_claimed)
		ORDER BY j.priority DESC, j.created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE %[1]s q SET
		status = 'CLAIMED', claimed_by = $1, claimed_at = now(),
		started_at = now(), attempts = attempts + 1, updated_at = now()
	FROM candidate WHERE q.id = candidate.id
	RETURNING %[2]s`, jq, prefixColumns("q", jobColumns))

	job, err = scanJob(s.pool.QueryRow(ctx, query,
		workerID, repoNames, typeNames, perRepo, limitTypes, limitValues,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, cmerrors.IOError("database", err)
	}
	return job, true, nil
}

// Complete marks a CLAIMED job DONE.
func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'DONE', completed_at = now(),
		last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'CLAIMED'`, s.controlTable("job_queue"))
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	if tag.RowsAffected() == 0 {
		return cmerrors.InvalidInput(fmt.Sprintf("job %s is not CLAIMED", id))
	}
	return nil
}

// Fail records a job failure. Retryable failures with remaining attempts
// requeue with run_after = now() + base * 2^attempts; everything else goes
// FAILED. The resulting status is returned.
func (s *Store) Fail(ctx context.Context, id uuid.UUID, jobErr error, retryable bool, backoffBase time.Duration) (JobStatus, error) {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	query := fmt.Sprintf(`UPDATE %s SET
		status = CASE WHEN $3 AND attempts < max_attempts THEN 'PENDING' ELSE 'FAILED' END,
		run_after = CASE WHEN $3 AND attempts < max_attempts
			THEN now() + make_interval(secs => $4 * power(2, attempts)) ELSE run_after END,
		completed_at = CASE WHEN $3 AND attempts < max_attempts THEN NULL ELSE now() END,
		claimed_by = NULL, claimed_at = NULL,
		last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'CLAIMED'
		RETURNING status`, s.controlTable("job_queue"))

	var status JobStatus
	err := s.pool.QueryRow(ctx, query, id, msg, retryable, backoffBase.Seconds()).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", cmerrors.InvalidInput(fmt.Sprintf("job %s is not CLAIMED", id))
		}
		return "", cmerrors.IOError("database", err)
	}
	return status, nil
}

// Cancel cancels a job. PENDING jobs go straight to CANCELLED; CLAIMED
// jobs get cancel_requested set and stop cooperatively at the worker's
// next checkpoint. The status after the call is returned.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) (JobStatus, error) {
	query := fmt.Sprintf(`UPDATE %s SET
		status = CASE WHEN status = 'PENDING' THEN 'CANCELLED' ELSE status END,
		completed_at = CASE WHEN status = 'PENDING' THEN now() ELSE completed_at END,
		cancel_requested = CASE WHEN status = 'CLAIMED' THEN TRUE ELSE cancel_requested END,
		updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'CLAIMED')
		RETURNING status`, s.controlTable("job_queue"))

	var status JobStatus
	err := s.pool.QueryRow(ctx, query, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			job, getErr := s.GetJob(ctx, id)
			if getErr != nil {
				return "", getErr
			}
			return job.Status, cmerrors.InvalidInput(fmt.Sprintf("job %s already %s", id, job.Status))
		}
		return "", cmerrors.IOError("database", err)
	}
	return status, nil
}

// CancelRequested reports whether a cooperative cancel is pending for the
// job. Workers poll this between units of work.
func (s *Store) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	query := fmt.Sprintf("SELECT cancel_requested FROM %s WHERE id = $1", s.controlTable("job_queue"))
	var requested bool
	if err := s.pool.QueryRow(ctx, query, id).Scan(&requested); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, cmerrors.IOError("database", err)
	}
	return requested, nil
}

// MarkCancelled finalizes a cooperatively cancelled CLAIMED job.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'CANCELLED', completed_at = now(),
		claimed_by = NULL, claimed_at = NULL, last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'CLAIMED'`, s.controlTable("job_queue"))
	if _, err := s.pool.Exec(ctx, query, id, reason); err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// ReleaseStale returns CLAIMED jobs whose claim is older than olderThan to
// PENDING with a backoff, or fails them when attempts are exhausted. Used
// by the health monitor against crashed and wedged workers.
func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Duration, note string, backoffBase time.Duration) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET
		status = CASE WHEN attempts < max_attempts THEN 'PENDING' ELSE 'FAILED' END,
		run_after = CASE WHEN attempts < max_attempts
			THEN now() + make_interval(secs => $3 * power(2, attempts)) ELSE run_after END,
		completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE now() END,
		claimed_by = NULL, claimed_at = NULL,
		last_error = $2, updated_at = now()
		WHERE status = 'CLAIMED' AND claimed_at < now() - make_interval(secs => $1)`,
		s.controlTable("job_queue"))

	tag, err := s.pool.Exec(ctx, query, olderThan.Seconds(), note, backoffBase.Seconds())
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseOwnedBy releases every CLAIMED job held by the given daemon
// instances, typically instances declared dead by heartbeat age.
func (s *Store) ReleaseOwnedBy(ctx context.Context, instanceIDs []string, note string, backoffBase time.Duration) (int64, error) {
	if len(instanceIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`UPDATE %s SET
		status = CASE WHEN attempts < max_attempts THEN 'PENDING' ELSE 'FAILED' END,
		run_after = CASE WHEN attempts < max_attempts
			THEN now() + make_interval(secs => $3 * power(2, attempts)) ELSE run_after END,
		completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE now() END,
		claimed_by = NULL, claimed_at = NULL,
		last_error = $2, updated_at = now()
		WHERE status = 'CLAIMED' AND claimed_by = ANY($1)`, s.controlTable("job_queue"))

	tag, err := s.pool.Exec(ctx, query, instanceIDs, note, backoffBase.Seconds())
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return tag.RowsAffected(), nil
}

// CountJobsByStatus returns queue depth per status, optionally scoped to
// one repo.
func (s *Store) CountJobsByStatus(ctx context.Context, repoName string) (map[JobStatus]int, error) {
	var repoFilter *string
	if repoName != "" {
		repoFilter = &repoName
	}
	query := fmt.Sprintf(`SELECT status, count(*) FROM %s
		WHERE ($1::text IS NULL OR repo_name = $1)
		GROUP BY status`, s.controlTable("job_queue"))

	rows, err := s.pool.Query(ctx, query, repoFilter)
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, cmerrors.IOError("database", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return counts, nil
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		if len(raw) == 0 {
			return []byte("{}"), nil
		}
		return raw, nil
	}
	return json.Marshal(payload)
}

// prefixColumns qualifies each column in a comma-separated list with a
// table alias for use in UPDATE ... RETURNING.
func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

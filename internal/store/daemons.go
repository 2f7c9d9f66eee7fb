package store

import (
	"context"
	"fmt"
	"time"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
)

// RegisterDaemon upserts this process's row in daemon_instances.
func (s *Store) RegisterDaemon(ctx context.Context, d *Daemon) error {
	query := fmt.Sprintf(`INSERT INTO %s (instance_id, hostname, pid, status, version, started_at, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (instance_id) DO UPDATE SET
			hostname = EXCLUDED.hostname, pid = EXCLUDED.pid, status = EXCLUDED.status,
			version = EXCLUDED.version, last_heartbeat = now()`,
		s.controlTable("daemon_instances"))
	if _, err := s.pool.Exec(ctx, query, d.InstanceID, d.Hostname, d.PID, d.Status, d.Version); err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// Heartbeat refreshes this instance's liveness timestamp.
func (s *Store) Heartbeat(ctx context.Context, instanceID string) error {
	query := fmt.Sprintf("UPDATE %s SET last_heartbeat = now() WHERE instance_id = $1",
		s.controlTable("daemon_instances"))
	tag, err := s.pool.Exec(ctx, query, instanceID)
	if err != nil {
		return cmerrors.IOError("database", err)
	}
	if tag.RowsAffected() == 0 {
		return cmerrors.Internal(fmt.Sprintf("daemon %s is not registered", instanceID), nil)
	}
	return nil
}

// MarkDaemonStopped records a clean shutdown.
func (s *Store) MarkDaemonStopped(ctx context.Context, instanceID string) error {
	query := fmt.Sprintf("UPDATE %s SET status = 'STOPPED', last_heartbeat = now() WHERE instance_id = $1",
		s.controlTable("daemon_instances"))
	if _, err := s.pool.Exec(ctx, query, instanceID); err != nil {
		return cmerrors.IOError("database", err)
	}
	return nil
}

// ListDaemons returns all known daemon rows, newest heartbeat first.
func (s *Store) ListDaemons(ctx context.Context) ([]*Daemon, error) {
	query := fmt.Sprintf(`SELECT instance_id, hostname, pid, status, version, started_at, last_heartbeat
		FROM %s ORDER BY last_heartbeat DESC`, s.controlTable("daemon_instances"))
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	defer rows.Close()

	var daemons []*Daemon
	for rows.Next() {
		var d Daemon
		if err := rows.Scan(&d.InstanceID, &d.Hostname, &d.PID, &d.Status, &d.Version, &d.StartedAt, &d.LastHeartbeat); err != nil {
			return nil, cmerrors.IOError("database", err)
		}
		daemons = append(daemons, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return daemons, nil
}

// DeadDaemons returns instance ids whose heartbeat is older than
// olderThan and that have not stopped cleanly. Their CLAIMED jobs are
// candidates for ReleaseOwnedBy.
func (s *Store) DeadDaemons(ctx context.Context, olderThan time.Duration) ([]string, error) {
	query := fmt.Sprintf(`SELECT instance_id FROM %s
		WHERE status <> 'STOPPED' AND last_heartbeat < now() - make_interval(secs => $1)`,
		s.controlTable("daemon_instances"))
	rows, err := s.pool.Query(ctx, query, olderThan.Seconds())
	if err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cmerrors.IOError("database", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.IOError("database", err)
	}
	return ids, nil
}

// PruneDaemons deletes rows with heartbeats older than olderThan. Dead
// instances must have their jobs released first.
func (s *Store) PruneDaemons(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE last_heartbeat < now() - make_interval(secs => $1)",
		s.controlTable("daemon_instances"))
	tag, err := s.pool.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, cmerrors.IOError("database", err)
	}
	return tag.RowsAffected(), nil
}

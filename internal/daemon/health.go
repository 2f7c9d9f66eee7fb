package daemon

import (
	"context"
	"time"
)

// healthLoop is the periodic self-heartbeat and janitor: dead daemons
// lose their claims, and claims older than the stale threshold go back
// to pending regardless of owner. Attempts are preserved either way so
// a crash-looping job still exhausts its retry budget.
func (d *Daemon) healthLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Daemon.HeartbeatEvery())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.healthPass(ctx)
		}
	}
}

func (d *Daemon) healthPass(ctx context.Context) {
	if err := d.store.Heartbeat(ctx, d.instanceID); err != nil {
		d.logger.Warn("heartbeat failed", "error", err)
	}

	backoff := d.cfg.Daemon.RetryBackoffBase()

	dead, err := d.store.DeadDaemons(ctx, d.cfg.Daemon.DeadAfter())
	if err != nil {
		d.logger.Warn("dead daemon scan failed", "error", err)
	} else if len(dead) > 0 {
		n, err := d.store.ReleaseOwnedBy(ctx, dead, "owning daemon dead", backoff)
		if err != nil {
			d.logger.Warn("dead daemon claim release failed", "error", err)
		} else if n > 0 {
			d.metrics.JobsReleased.Add(float64(n))
			d.logger.Info("released jobs from dead daemons",
				"daemons", len(dead), "jobs", n)
		}
	}

	n, err := d.store.ReleaseStale(ctx, d.cfg.Daemon.StaleJobAfter(), "claim exceeded stale threshold", backoff)
	if err != nil {
		d.logger.Warn("stale claim release failed", "error", err)
	} else if n > 0 {
		d.metrics.JobsReleased.Add(float64(n))
		d.logger.Info("released stale claims", "jobs", n)
	}

	// Rows for daemons gone much longer than the dead threshold are
	// noise; prune them.
	if _, err := d.store.PruneDaemons(ctx, 24*time.Hour); err != nil {
		d.logger.Warn("daemon row prune failed", "error", err)
	}
}

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/lossyproxy/internal/metrics"
)

// startMetricsLogger periodically logs a snapshot of local counters, for
// deployments that don't scrape /metrics.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"forwarded_c2s", snap.Forwarded[0], "forwarded_s2c", snap.Forwarded[1],
					"dropped_c2s", snap.Dropped[0], "dropped_s2c", snap.Dropped[1],
					"delayed_c2s", snap.Delayed[0], "delayed_s2c", snap.Delayed[1],
					"corrupted_c2s", snap.Corrupted[0], "corrupted_s2c", snap.Corrupted[1],
					"malformed_c2s", snap.Malformed[0], "malformed_s2c", snap.Malformed[1],
					"stats_ok", snap.StatsOK, "stats_dropped", snap.StatsDrop,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}

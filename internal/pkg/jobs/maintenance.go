package jobs

import (
	"context"
	"time"

	"github.com/samirrijal/ghostnotes/internal/pkg/metrics"
)

const DefaultPoolMetricsInterval = 15 * time.Second

// Pruner drops idle per-user notification state.
type Pruner interface {
	Prune(idle time.Duration) int
	Tracked() int
}

// MaintenanceConfig lists the periodic jobs of a process. Nil or zero fields
// skip the corresponding job.
type MaintenanceConfig struct {
	// PoolStat returns the current database pool statistics.
	PoolStat            func() metrics.PoolStat
	PoolMetricsInterval time.Duration

	Notifier      Pruner
	IdleTTL       time.Duration
	PruneInterval time.Duration
}

// RegisterMaintenance schedules the pool gauge refresh and the notifier
// idle-state prune.
func RegisterMaintenance(ctx context.Context, s *Scheduler, cfg MaintenanceConfig) error {
	if cfg.PoolStat != nil {
		interval := cfg.PoolMetricsInterval
		if interval <= 0 {
			interval = DefaultPoolMetricsInterval
		}
		err := s.Every(ctx, "db-pool-metrics", interval, func(context.Context) {
			metrics.UpdateDBPoolMetrics(cfg.PoolStat())
		})
		if err != nil {
			return err
		}
	}

	if cfg.Notifier != nil && cfg.IdleTTL > 0 && cfg.PruneInterval > 0 {
		err := s.Every(ctx, "notifier-prune", cfg.PruneInterval, func(context.Context) {
			if n := cfg.Notifier.Prune(cfg.IdleTTL); n > 0 {
				s.log.Info("pruned idle notification state", "users", n)
			}
			metrics.NotifierTrackedUsers.Set(float64(cfg.Notifier.Tracked()))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

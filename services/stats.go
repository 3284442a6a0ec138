package services

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"slidesync/metrics"
)

// StartPoolStatsReporter feeds connection pool gauges on a fixed interval
func StartPoolStatsReporter(pool *pgxpool.Pool) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stat := pool.Stat()
			metrics.UpdateDatabaseMetrics(int(stat.AcquiredConns()), int(stat.IdleConns()))
		}
	}()
}

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetflow/internal/cache"
	"budgetflow/internal/export"
	"budgetflow/internal/log"
	"budgetflow/internal/services"
)

const (
	reportCacheSize   = 256
	reportCacheBytes  = 32 << 20
	reportCachePrefix = "budgetflow:report:"
	exportPrefix      = "runs"
)

// NewReportCache returns a Redis backed cache when redisURL is set and an
// in-process LRU otherwise. The LRU is swept once per ttl.
func NewReportCache(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (cache.Cache[[]byte], CleanupFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	if redisURL != "" {
		client, err := cache.Connect(ctx, redisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Initialized Redis report cache", "ttl", ttl)
		return cache.NewRedisCache[[]byte](client, reportCachePrefix, ttl, logger), client.Close, nil
	}

	lru := cache.NewWeightedLRUCache[[]byte](reportCacheSize, reportCacheBytes, ttl, cache.ByteLen)
	manager := cache.NewManager(logger)
	manager.Register(lru)
	manager.StartCleanup(ttl)
	logger.Info("Initialized in-process report cache", "size", reportCacheSize, "bytes", reportCacheBytes, "ttl", ttl)
	return lru, func() error {
		manager.Stop()
		st := lru.Stats()
		logger.Debug("Report cache closed", "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions, "expirations", st.Expirations)
		return nil
	}, nil
}

// NewExporter connects the archive bucket. Without a bucket it returns a nil
// exporter and runs are not archived.
func NewExporter(ctx context.Context, bucket string, logger *log.Logger) (services.Exporter, CleanupFunc, error) {
	if bucket == "" {
		return nil, nil, nil
	}
	client, b, err := export.Connect(ctx, bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize export bucket %s: %w", bucket, err)
	}
	logger.Info("Initialized report export", "bucket", bucket)
	return export.New(b, exportPrefix, logger), client.Close, nil
}

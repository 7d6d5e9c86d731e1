package app

import (
	"context"
	"fmt"
	"log"

	"codementor/internal/cache/disk"
	"codementor/internal/cache/memory"
	"codementor/internal/cache/postgres"
	"codementor/internal/cache/result"
	"codementor/internal/cache/s3"
	"codementor/internal/gateway/config"
)

// openCache builds the result cache on the configured backend. The returned close
// func releases backend resources and is never nil.
func openCache(ctx context.Context, cfg config.CacheConfig) (*result.Cache, func() error, error) {
	noop := func() error { return nil }
	var store result.Store
	closeFn := noop

	switch cfg.Backend {
	case config.BackendMemory, "":
		mc := memory.DefaultConfig()
		if cfg.MaxEntries > 0 {
			mc.MaxEntries = cfg.MaxEntries
		}
		mc.DefaultTTL = cfg.TTL
		store = memory.NewStore(mc)
		log.Printf("result cache: memory max_entries=%d ttl=%s", mc.MaxEntries, cfg.TTL)
	case config.BackendDisk:
		ds, err := disk.NewStore(disk.Config{Root: cfg.DiskRoot, MaxEntries: cfg.MaxEntries, DefaultTTL: cfg.TTL})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open disk cache: %w", err)
		}
		store = ds
		log.Printf("result cache: disk root=%s", cfg.DiskRoot)
	case config.BackendPostgres:
		ps, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN, DefaultTTL: cfg.TTL, LocalEntries: cfg.MaxEntries})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres cache: %w", err)
		}
		store, closeFn = ps, ps.Close
		log.Printf("result cache: postgres")
	case config.BackendS3:
		ss, err := s3.NewStore(s3.Config{
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Bucket:     cfg.S3.Bucket,
			Prefix:     cfg.S3.Prefix,
			UseSSL:     cfg.S3.UseSSL,
			DefaultTTL: cfg.TTL,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize s3 cache: %w", err)
		}
		store = ss
		log.Printf("result cache: s3 bucket=%s endpoint=%s", cfg.S3.Bucket, cfg.S3.Endpoint)
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return result.New(store, cfg.TTL), closeFn, nil
}

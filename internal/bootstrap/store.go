// Package bootstrap builds the pieces shared by the server and the seed
// command from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"volunteer-coordination/internal/config"
	"volunteer-coordination/internal/storage"
	"volunteer-coordination/internal/storage/boltstore"
	"volunteer-coordination/internal/storage/mongostore"

	"github.com/rs/zerolog"
)

// OpenStore connects the configured driver and bounds every call with
// STORE_TIMEOUT.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage.Timed, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.StorageDriver {
	case config.DriverBolt:
		if dir := filepath.Dir(cfg.BoltPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create bolt directory: %w", err)
			}
		}
		store, err = boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		log.Info().Str("path", cfg.BoltPath).Msg("Opened bolt store")

	case config.DriverMongo:
		store, err = mongostore.Connect(ctx, cfg.MongoURI, cfg.DatabaseName, cfg.MongoTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	return storage.WithTimeout(store, cfg.StoreTimeout), nil
}

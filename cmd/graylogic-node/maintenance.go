package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

// withStore loads the configuration, opens the settings database and
// passes its key/value view to fn. Used by the offline maintenance commands.
func withStore(ctx context.Context, configPath string, fn func(ctx context.Context, store kvstore.Store, log *logging.Logger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	return fn(ctx, kvstore.NewSQLite(db), log)
}

// forgetNetwork clears the stored station credentials. The next start
// enters provisioning.
func forgetNetwork(ctx context.Context, configPath string) error {
	return withStore(ctx, configPath, func(ctx context.Context, store kvstore.Store, log *logging.Logger) error {
		var errs []error
		for _, key := range []string{connectivity.KeySSID, connectivity.KeyPassword, connectivity.KeyProvisioned} {
			if err := store.Delete(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("clearing credentials: %w", errors.Join(errs...))
		}
		log.Info("network credentials cleared")
		return nil
	})
}

// factoryReset erases every persisted setting. The next start seeds
// first-boot defaults.
func factoryReset(ctx context.Context, configPath string) error {
	return withStore(ctx, configPath, func(ctx context.Context, store kvstore.Store, log *logging.Logger) error {
		if err := store.Erase(ctx); err != nil {
			return fmt.Errorf("erasing storage: %w", err)
		}
		log.Info("persisted settings erased")
		return nil
	})
}

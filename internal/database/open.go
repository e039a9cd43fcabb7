package database

import (
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/config"
)

// Open selects the backend once at startup. When the durable database
// cannot be opened or migrated the in-memory store is returned instead;
// the failure is logged but never surfaced to callers.
func Open(cfg config.DatabaseConfig, log *zap.Logger) Store {
	if cfg.ForceMemory {
		log.Info("Using in-memory database")
		return NewMemoryStore()
	}

	db, err := Connect(cfg, log)
	if err != nil {
		log.Warn("Durable database unavailable, using in-memory database", zap.Error(err))
		return NewMemoryStore()
	}

	store := NewGormStore(db, log)
	if err := store.Migrate(); err != nil {
		log.Warn("Schema migration failed, using in-memory database", zap.Error(err))
		_ = db.Close()
		return NewMemoryStore()
	}

	log.Info("Database ready", zap.String("backend", store.Backend()))
	return store
}

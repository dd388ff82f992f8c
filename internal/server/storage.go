package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/sql-snippets/internal/config"
	"github.com/sakif/sql-snippets/internal/repository"
	"github.com/sakif/sql-snippets/internal/repository/memory"
	sqliteRepo "github.com/sakif/sql-snippets/internal/repository/sqlite"
	"github.com/sakif/sql-snippets/internal/store"
)

// Storage is the persistence the server and the CLI share: the SQLite
// database (users, and snippets unless ephemeral), the key/value medium the
// store writes through, and the store itself.
type Storage struct {
	DB    *sqliteRepo.DB
	KV    repository.KVStore
	Store *store.Store
}

// OpenStorage opens the configured medium. Ephemeral storage keeps snippets
// in a quota-bounded memory medium and users in an in-memory database.
func OpenStorage(cfg *config.Config, logger *slog.Logger) (*Storage, error) {
	dbPath := ":memory:"
	if !cfg.Storage.Ephemeral {
		dbPath = cfg.Storage.DBPath
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("server: creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	var kv repository.KVStore = db
	if cfg.Storage.Ephemeral {
		kv = memory.New(cfg.Storage.QuotaBytes)
	}

	logger.Debug("storage opened",
		slog.String("database", dbPath),
		slog.Bool("ephemeral", cfg.Storage.Ephemeral),
	)
	return &Storage{DB: db, KV: kv, Store: store.New(kv, logger)}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.DB.Close()
}

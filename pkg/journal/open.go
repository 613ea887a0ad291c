package journal

import (
	"fmt"

	"mercator-hq/policyhub/pkg/config"
)

// Open creates the store selected by cfg.Backend. opts apply to SQL
// backends only.
func Open(cfg *config.JournalConfig, opts ...SQLOption) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case DriverSQLite, DriverSQLite3:
		return NewSQLStore(&SQLConfig{
			Driver:       cfg.Backend,
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALEnabled(),
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}

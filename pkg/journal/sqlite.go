package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	_ "modernc.org/sqlite" // registers "sqlite" (pure Go)

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

// Supported SQL drivers.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
)

// SQLConfig contains configuration for the SQL store.
type SQLConfig struct {
	// Driver is DriverSQLite (modernc, pure Go) or DriverSQLite3 (mattn, cgo).
	Driver string

	// Path is the database file path. ":memory:" uses a private in-memory
	// database on a single connection.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	BusyTimeout time.Duration
}

// DefaultSQLConfig returns the default SQL configuration.
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		Driver:       DriverSQLite,
		Path:         "data/journal.db",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLStore implements Store on SQLite.
type SQLStore struct {
	db     *sql.DB
	config *SQLConfig
	logger *slog.Logger
	tracer trace.Tracer
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLTracer traces every Append.
func WithSQLTracer(tracer trace.Tracer) SQLOption {
	return func(s *SQLStore) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewSQLStore opens (creating if necessary) a SQLite journal.
func NewSQLStore(config *SQLConfig, opts ...SQLOption) (*SQLStore, error) {
	if config == nil {
		config = DefaultSQLConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverSQLite
	}
	if config.Driver != DriverSQLite && config.Driver != DriverSQLite3 {
		return nil, NewStorageError(config.Driver, "open", fmt.Errorf("unsupported driver %q", config.Driver))
	}
	if config.Path == "" {
		return nil, NewStorageError(config.Driver, "open", errors.New("database path cannot be empty"))
	}

	logger := slog.Default().With("component", "journal.storage."+config.Driver)

	inMemory := config.Path == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, NewStorageError(config.Driver, "mkdir", err)
			}
		}
	}

	db, err := sql.Open(config.Driver, dsn(config))
	if err != nil {
		return nil, NewStorageError(config.Driver, "open", err)
	}

	if inMemory {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if config.MaxOpenConns > 0 {
			db.SetMaxOpenConns(config.MaxOpenConns)
		}
		if config.MaxIdleConns > 0 {
			db.SetMaxIdleConns(config.MaxIdleConns)
		}
	}

	s := &SQLStore{db: db, config: config, logger: logger, tracer: noop.NewTracerProvider().Tracer("")}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("journal storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode && !inMemory,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// dsn builds a connection string that applies the pragmas to every pooled
// connection. The two drivers spell pragma parameters differently.
func dsn(config *SQLConfig) string {
	busy := config.BusyTimeout.Milliseconds()
	wal := config.WALMode && config.Path != ":memory:"

	var params []string
	switch config.Driver {
	case DriverSQLite3:
		params = append(params, fmt.Sprintf("_busy_timeout=%d", busy))
		if wal {
			params = append(params, "_journal_mode=WAL", "_synchronous=NORMAL")
		}
	default:
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", busy))
		if wal {
			params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
		}
	}

	return "file:" + config.Path + "?" + strings.Join(params, "&")
}

// initialize creates the schema and checks its version.
func (s *SQLStore) initialize() error {
	if err := s.db.Ping(); err != nil {
		return s.err("ping", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return s.err("create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion, time.Now().UnixNano()); err != nil {
		return s.err("insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return s.err("get_schema_version", err)
	}
	if !version.Valid || version.Int64 != SchemaVersion {
		return s.err("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}

	s.logger.Debug("schema version verified", "version", version.Int64)
	return nil
}

func (s *SQLStore) err(op string, cause error) error {
	return NewStorageError(s.config.Driver, op, cause)
}

// Append stores the batch and updates policy_states in one transaction.
func (s *SQLStore) Append(ctx context.Context, changes []Change) (err error) {
	if len(changes) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "journal.append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.BatchAttributes(len(changes), changes[len(changes)-1].Version)...),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String(tracing.AttrJournalBackend, s.config.Driver),
		),
	)
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.err("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	insert, err := tx.PrepareContext(ctx, insertChangeSQL)
	if err != nil {
		return s.err("prepare", err)
	}
	defer insert.Close()

	for _, c := range changes {
		if !c.Op.Valid() {
			return s.err("append", fmt.Errorf("change %s has unknown op %q", c.ID, c.Op))
		}
		if _, err := insert.ExecContext(ctx,
			c.ID.String(), int64(c.Version), c.PolicyID, string(c.Op),
			string(c.Mode), string(c.PreviousMode), c.RecordedAt.UnixNano(),
		); err != nil {
			return s.err("append", err)
		}

		switch c.Op {
		case OpSet:
			_, err = tx.ExecContext(ctx, upsertStateSQL, c.PolicyID, string(c.Mode), c.RecordedAt.UnixNano())
		case OpRemove:
			_, err = tx.ExecContext(ctx, deleteStateSQL, c.PolicyID)
		}
		if err != nil {
			return s.err("update_state", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.err("commit", err)
	}
	return nil
}

// States returns the materialized state.
func (s *SQLStore) States(ctx context.Context) (map[string]policy.State, error) {
	rows, err := s.db.QueryContext(ctx, selectStatesSQL)
	if err != nil {
		return nil, s.err("states", err)
	}
	defer rows.Close()

	states := make(map[string]policy.State)
	for rows.Next() {
		var id, mode string
		if err := rows.Scan(&id, &mode); err != nil {
			return nil, s.err("states", err)
		}
		states[id] = policy.State{Mode: policy.Mode(mode)}
	}
	if err := rows.Err(); err != nil {
		return nil, s.err("states", err)
	}
	return states, nil
}

// Query returns matching changes, newest first.
func (s *SQLStore) Query(ctx context.Context, q *Query) ([]Change, error) {
	if q == nil {
		q = &Query{}
	}
	if err := q.Validate(); err != nil {
		return nil, s.err("query", err)
	}

	query, args := buildQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.err("query", err)
	}
	defer rows.Close()

	results := []Change{}
	for rows.Next() {
		var (
			c                  Change
			id, op, mode, prev string
			version, recorded  int64
		)
		if err := rows.Scan(&id, &version, &c.PolicyID, &op, &mode, &prev, &recorded); err != nil {
			return nil, s.err("query", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, s.err("query", fmt.Errorf("corrupt change id %q: %w", id, err))
		}
		c.Version = uint64(version)
		c.Op = Op(op)
		c.Mode = policy.Mode(mode)
		c.PreviousMode = policy.Mode(prev)
		c.RecordedAt = time.Unix(0, recorded).UTC()
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.err("query", err)
	}
	return results, nil
}

func buildQuery(q *Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.PolicyID != "" {
		where = append(where, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if q.Op != "" {
		where = append(where, "op = ?")
		args = append(args, string(q.Op))
	}
	if q.Since != nil {
		where = append(where, "recorded_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		where = append(where, "recorded_at < ?")
		args = append(args, q.Until.UnixNano())
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, version, policy_id, op, mode, previous_mode, recorded_at FROM changes")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY seq DESC LIMIT ?")
	args = append(args, q.Limit)
	return sb.String(), args
}

// Count returns the number of stored changes.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, countChangesSQL).Scan(&n); err != nil {
		return 0, s.err("count", err)
	}
	return n, nil
}

// DeleteBefore removes changes recorded before t.
func (s *SQLStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteBeforeSQL, t.UnixNano())
	if err != nil {
		return 0, s.err("delete_before", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.err("delete_before", err)
	}
	return n, nil
}

// Trim keeps only the newest max changes.
func (s *SQLStore) Trim(ctx context.Context, max int64) (int64, error) {
	if max < 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, trimSQL, max)
	if err != nil {
		return 0, s.err("trim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.err("trim", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return s.err("close", err)
	}
	return nil
}

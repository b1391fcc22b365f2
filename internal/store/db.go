// Package store provides the persistent code graph. Nodes and typed edges live in
// a SQL database behind database/sql; callers depend on the Graph interface and
// never on the query dialect.
//
// Backends:
//
//	sqlite       single file at .autodoc/graph.db (default)
//	dolt         embedded Dolt repository at .autodoc/graph/, versioned per build
//	dolt-server  a running Dolt (or MySQL-compatible) sql-server at host:port
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Backend names.
const (
	BackendSQLite     = "sqlite"
	BackendDolt       = "dolt"
	BackendDoltServer = "dolt-server"
)

const databaseName = "autodoc"

// ErrStoreUnavailable is returned when the store is configured correctly but
// cannot be reached or opened.
var ErrStoreUnavailable = errors.New("graph store unavailable")

// ErrDependencyMissing is returned when the requested backend's driver is not
// compiled into this binary or the backend name is unknown.
var ErrDependencyMissing = errors.New("graph store dependency missing")

// Error describes a store failure with a remediation hint.
// errors.Is matches both the kind sentinel and the wrapped cause.
type Error struct {
	Kind    error
	Backend string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v (%s)", e.Kind, e.Backend)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Config selects and addresses a backend.
type Config struct {
	Backend string
	// URI is a file path for sqlite, a directory for dolt, host:port for dolt-server.
	URI      string
	Username string
	Password string
}

// Graph is the store contract used by the builder and the query layers.
type Graph interface {
	Clear(ctx context.Context) error
	InsertNodes(ctx context.Context, nodes []*Node) error
	InsertEdges(ctx context.Context, edges []*Edge) error
	Nodes(ctx context.Context, filter NodeFilter) ([]*Node, error)
	Node(ctx context.Context, id string) (*Node, error)
	Edges(ctx context.Context, filter EdgeFilter) ([]*Edge, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Store is the database/sql implementation of Graph.
type Store struct {
	db      *sql.DB
	backend string
	dialect dialect
	path    string
}

var _ Graph = (*Store)(nil)

// Open connects to the configured backend, creating the database and schema if
// needed. The connection is verified with a ping before returning.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendSQLite
	}

	driverName, ok := driverNames[backend]
	if !ok {
		return nil, &Error{
			Kind:    ErrDependencyMissing,
			Backend: backend,
			Hint:    fmt.Sprintf("supported backends: %s, %s, %s", BackendSQLite, BackendDolt, BackendDoltServer),
		}
	}
	if !slices.Contains(sql.Drivers(), driverName) {
		return nil, &Error{
			Kind:    ErrDependencyMissing,
			Backend: backend,
			Hint:    fmt.Sprintf("driver %q is not compiled into this binary; rebuild without the nodolt tag or use the %s backend", driverName, BackendSQLite),
		}
	}

	var (
		s   *Store
		err error
	)
	switch backend {
	case BackendSQLite:
		s, err = openSQLite(cfg.URI)
	case BackendDolt:
		s, err = openDolt(ctx, cfg)
	case BackendDoltServer:
		s, err = openDoltServer(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, unavailable(backend, err)
	}

	if err := s.initSchema(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func unavailable(backend string, err error) error {
	hint := "check that the database path is writable"
	if backend == BackendDoltServer {
		hint = "check that `dolt sql-server` is running and the graph uri, username and password are correct"
	}
	return &Error{Kind: ErrStoreUnavailable, Backend: backend, Hint: hint, Err: err}
}

// errDBClosed is the text database/sql uses for calls on a closed *sql.DB; it
// has no exported sentinel.
const errDBClosed = "sql: database is closed"

// classify marks errors caused by a lost or closed connection as
// ErrStoreUnavailable. Other errors, including context cancellation, pass
// through unchanged.
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &ne) ||
		strings.Contains(err.Error(), errDBClosed) {
		return unavailable(s.backend, err)
	}
	return err
}

func openSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, unavailable(BackendSQLite, errors.New("empty database path"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, unavailable(BackendSQLite, fmt.Errorf("create directory: %w", err))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable(BackendSQLite, err)
	}
	// Single writer; avoids SQLITE_BUSY between the build transaction and reads.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, unavailable(BackendSQLite, fmt.Errorf("set WAL mode: %w", err))
	}

	return &Store{db: db, backend: BackendSQLite, dialect: sqliteDialect, path: path}, nil
}

func openDolt(ctx context.Context, cfg Config) (*Store, error) {
	dir := cfg.URI
	if dir == "" {
		return nil, unavailable(BackendDolt, errors.New("empty repository path"))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, unavailable(BackendDolt, fmt.Errorf("create dolt directory: %w", err))
	}

	name := cfg.Username
	if name == "" {
		name = "autodoc"
	}

	// Connect without a database first so it can be created.
	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s@local", dir, name, name)
	initDB, err := sql.Open("dolt", initDSN)
	if err != nil {
		return nil, unavailable(BackendDolt, err)
	}
	if _, err := initDB.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+databaseName); err != nil {
		initDB.Close()
		return nil, unavailable(BackendDolt, fmt.Errorf("create database: %w", err))
	}
	initDB.Close()

	db, err := sql.Open("dolt", initDSN+"&database="+databaseName)
	if err != nil {
		return nil, unavailable(BackendDolt, err)
	}

	return &Store{db: db, backend: BackendDolt, dialect: mysqlDialect, path: dir}, nil
}

func openDoltServer(ctx context.Context, cfg Config) (*Store, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.URI
	mc.Timeout = 5 * time.Second
	mc.ParseTime = true

	initDB, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, unavailable(BackendDoltServer, err)
	}
	if _, err := initDB.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+databaseName); err != nil {
		initDB.Close()
		return nil, unavailable(BackendDoltServer, err)
	}
	initDB.Close()

	mc.DBName = databaseName
	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, unavailable(BackendDoltServer, err)
	}

	return &Store{db: db, backend: BackendDoltServer, dialect: mysqlDialect, path: cfg.URI}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Backend returns the backend name.
func (s *Store) Backend() string {
	return s.backend
}

// Run executes a raw query and returns each row as a column→value map.
// Byte slices are converted to strings.
func (s *Store) Run(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", s.classify(err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, s.classify(err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", s.classify(err))
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, s.classify(rows.Err())
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roach88/skop/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// applicationID marks a SQLite file as a skop investigation ("skop").
const applicationID = 0x736B6F70

// Schema version tracking:
// 1 - Initial schema (metadata, widgets, raw_data)
const currentSchemaVersion = ir.SchemaVersion

// ConfigValidator checks a canonical widget config for a widget type.
type ConfigValidator interface {
	ValidateConfig(widgetType ir.WidgetType, config []byte) error
}

// Option configures Open and Create.
type Option func(*options)

type options struct {
	clock       Clock
	busyTimeout time.Duration
	synchronous string
	validator   ConfigValidator
	maxConns    int
}

func defaultOptions() options {
	return options{
		busyTimeout: 5 * time.Second,
		synchronous: "FULL",
		maxConns:    4,
	}
}

// WithClock sets the capture clock. Defaults to a SystemClock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithSynchronous sets the SQLite synchronous level (OFF, NORMAL, FULL, EXTRA).
func WithSynchronous(level string) Option {
	return func(o *options) { o.synchronous = strings.ToUpper(level) }
}

// WithValidator validates widget configs on create and update.
func WithValidator(v ConfigValidator) Option {
	return func(o *options) { o.validator = v }
}

// Store is an open investigation.
//
// All methods are safe for concurrent use. Close waits for in-flight
// operations; afterwards every method returns ErrClosed.
type Store struct {
	db        *sql.DB
	path      string
	clock     Clock
	validator ConfigValidator
	lock      *fileLock

	life   sync.RWMutex
	closed bool

	// writeMu is held only around a single write transaction.
	writeMu sync.Mutex

	writersMu sync.Mutex
	writers   map[ir.WidgetID]*widgetWriter
}

// Create initializes a new investigation file at path.
// Returns ErrAlreadyExists if anything already occupies the path.
func Create(path string, meta ir.Metadata, opts ...Option) (*Store, error) {
	o := buildOptions(opts)

	if _, err := os.Lstat(path); err == nil {
		return nil, &OpError{Op: "create " + path, Kind: ErrAlreadyExists}
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}
	// Re-check under the lock; a concurrent Create may have won.
	if _, err := os.Lstat(path); err == nil {
		lock.release()
		return nil, &OpError{Op: "create " + path, Kind: ErrAlreadyExists}
	}

	s, err := connect(path, o, lock)
	if err != nil {
		lock.release()
		removeDatabaseFiles(path)
		return nil, err
	}

	if err := s.initialize(meta); err != nil {
		s.db.Close()
		lock.release()
		removeDatabaseFiles(path)
		return nil, err
	}

	zap.L().Info("investigation created", zap.String("path", path), zap.String("name", meta.Name))
	return s, nil
}

// Open opens an existing investigation file.
//
// Returns ErrNotFound if the file is missing, ErrAlreadyOpen if another handle
// holds it, and ErrCorruptOrIncompatible if it is not a skop investigation or
// has a newer schema version.
func Open(path string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &OpError{Op: "open " + path, Kind: ErrNotFound}
		}
		return nil, &OpError{Op: "open " + path, Kind: ErrStoreUnavailable, Err: err}
	}
	if fi.IsDir() {
		return nil, &OpError{Op: "open " + path, Kind: ErrCorruptOrIncompatible, Err: fmt.Errorf("is a directory")}
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	s, err := connect(path, o, lock)
	if err != nil {
		lock.release()
		return nil, err
	}

	if err := s.verify(); err != nil {
		s.db.Close()
		lock.release()
		return nil, err
	}

	if fc, ok := s.clock.(flooredClock); ok {
		latest, err := s.latestTimestamp(context.Background())
		if err != nil {
			s.db.Close()
			lock.release()
			return nil, err
		}
		fc.Observe(latest)
	}

	zap.L().Info("investigation opened", zap.String("path", path))
	return s, nil
}

// Close waits for in-flight operations, closes the database and releases the
// file lock. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.life.Lock()
	defer s.life.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	dbErr := s.db.Close()
	lockErr := s.lock.release()
	zap.L().Info("investigation closed", zap.String("path", s.path))
	if dbErr != nil {
		return wrapDB(dbErr, "close")
	}
	if lockErr != nil {
		return eris.Wrap(lockErr, "release lock")
	}
	return nil
}

// Path returns the investigation file path.
func (s *Store) Path() string {
	return s.path
}

// Clock returns the capture clock in use.
func (s *Store) Clock() Clock {
	return s.clock
}

// enter marks an operation in flight. Callers must defer leave.
// Operations never call enter recursively.
func (s *Store) enter() error {
	s.life.RLock()
	if s.closed {
		s.life.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) leave() {
	s.life.RUnlock()
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewSystemClock()
	}
	return o
}

// dsn builds a go-sqlite3 DSN. Pragmas are passed as DSN parameters so every
// pooled connection is configured identically.
func dsn(path string, o options) string {
	v := url.Values{}
	v.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10))
	v.Set("_foreign_keys", "on")
	v.Set("_journal_mode", "WAL")
	v.Set("_synchronous", o.synchronous)
	return path + "?" + v.Encode()
}

func connect(path string, o options, lock *fileLock) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path, o))
	if err != nil {
		return nil, eris.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrapDB(err, "connect "+path)
	}

	// WAL allows one writer and many readers. Writes are serialized by writeMu,
	// extra connections serve concurrent readers.
	db.SetMaxOpenConns(o.maxConns)
	db.SetMaxIdleConns(o.maxConns)

	return &Store{
		db:        db,
		path:      path,
		clock:     o.clock,
		validator: o.validator,
		lock:      lock,
		writers:   make(map[ir.WidgetID]*widgetWriter),
	}, nil
}

// initialize applies the schema and writes the initial metadata in one
// transaction.
func (s *Store) initialize(meta ir.Metadata) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB(err, "create: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return wrapDB(err, "create: apply schema")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		return wrapDB(err, "create: set application_id")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return wrapDB(err, "create: set user_version")
	}

	if meta.UID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return eris.Wrap(err, "create: generate uid")
		}
		meta.UID = id.String()
	}
	if meta.CreatedAt == 0 {
		meta.CreatedAt = s.clock.Now()
	}
	if meta.ClockSource == "" {
		meta.ClockSource = ClockSourceSystem
	}
	meta.SchemaVersion = currentSchemaVersion
	if err := writeMetadata(ctx, tx, meta); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDB(err, "create: commit")
	}
	return nil
}

// verify checks the application id and schema version of an existing file
// and applies pending migrations.
func (s *Store) verify() error {
	var appID int64
	if err := s.db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		return wrapDB(err, "read application_id")
	}
	if appID != applicationID {
		return &OpError{Op: "open " + s.path, Kind: ErrCorruptOrIncompatible, Err: fmt.Errorf("not a skop investigation")}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return wrapDB(err, "read user_version")
	}
	switch {
	case version == 0:
		return &OpError{Op: "open " + s.path, Kind: ErrCorruptOrIncompatible, Err: fmt.Errorf("schema was never initialized")}
	case version > currentSchemaVersion:
		return &OpError{Op: "open " + s.path, Kind: ErrCorruptOrIncompatible,
			Err: fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)}
	}
	return s.runMigrations(version)
}

// runMigrations applies incremental schema migrations based on user_version.
// Version 1 is the baseline; later versions add steps here.
func (s *Store) runMigrations(from int) error {
	if from == currentSchemaVersion {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return wrapDB(err, "set user_version")
	}
	return nil
}

// latestTimestamp returns the greatest timestamp recorded in the file.
func (s *Store) latestTimestamp(ctx context.Context) (int64, error) {
	var latest int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(timestamp) FROM raw_data), 0),
			COALESCE((SELECT MAX(created_at) FROM widgets), 0)
		)
	`).Scan(&latest)
	if err != nil {
		return 0, wrapDB(err, "read latest timestamp")
	}
	return latest, nil
}

func removeDatabaseFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		os.Remove(p)
	}
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

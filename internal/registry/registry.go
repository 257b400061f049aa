// Package registry tracks the investigations known to this machine and
// holds user settings. It is separate from the investigation files and can
// be rebuilt from them.
package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roach88/skop/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

var (
	// ErrNotFound is returned when no entry matches.
	ErrNotFound = errors.New("investigation not registered")

	// ErrDuplicate is returned when a file path is already registered.
	ErrDuplicate = errors.New("investigation already registered")

	// ErrAmbiguous is returned when a name matches several entries.
	ErrAmbiguous = errors.New("investigation name is ambiguous")
)

// Entry is one registered investigation.
type Entry struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	CreatedAt    int64    `json:"created_at"`    // µs
	LastAccessed int64    `json:"last_accessed"` // µs
	Archived     bool     `json:"archived"`
	Color        ir.Color `json:"color"`
}

// Registry is the registry database.
type Registry struct {
	db  *sql.DB
	now func() int64
}

// Open creates or opens the registry database at path, creating parent
// directories as needed.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "create registry directory")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, eris.Wrap(err, "open registry")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "connect registry %s", path)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "apply registry schema")
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "set registry user_version")
	}

	return &Registry{db: db, now: func() int64 { return time.Now().UnixMicro() }}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Add registers an investigation file. The path is stored absolute.
func (r *Registry) Add(ctx context.Context, name, path string, color ir.Color) (Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, eris.Wrapf(err, "resolve %s", path)
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO investigations (name, file_path, created_at, last_accessed, archived, color_rgb)
		VALUES (?, ?, ?, ?, 0, ?)
	`, name, abs, now, now, color.String())
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return Entry{}, fmt.Errorf("%w: %s", ErrDuplicate, abs)
		}
		return Entry{}, eris.Wrap(err, "insert investigation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, eris.Wrap(err, "investigation id")
	}

	zap.L().Info("investigation registered", zap.Int64("id", id), zap.String("name", name), zap.String("path", abs))
	return Entry{ID: id, Name: name, Path: abs, CreatedAt: now, LastAccessed: now, Color: color}, nil
}

// List returns registered investigations, most recently accessed first.
// Archived entries are included only when includeArchived is set.
func (r *Registry) List(ctx context.Context, includeArchived bool) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM investigations`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY last_accessed DESC, id DESC`
	return r.query(ctx, query)
}

// Get returns the entry with the given id.
func (r *Registry) Get(ctx context.Context, id int64) (Entry, error) {
	entries, err := r.query(ctx, `SELECT `+entryColumns+` FROM investigations WHERE id = ?`, id)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return entries[0], nil
}

// Resolve finds an entry by numeric id, file path, or case-insensitive name.
// Names only match non-archived entries.
func (r *Registry) Resolve(ctx context.Context, ref string) (Entry, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if e, err := r.Get(ctx, id); err == nil {
			return e, nil
		}
	}

	if abs, err := filepath.Abs(ref); err == nil {
		entries, err := r.query(ctx, `SELECT `+entryColumns+` FROM investigations WHERE file_path = ?`, abs)
		if err != nil {
			return Entry{}, err
		}
		if len(entries) == 1 {
			return entries[0], nil
		}
	}

	active, err := r.List(ctx, false)
	if err != nil {
		return Entry{}, err
	}
	var matches []Entry
	for _, e := range active {
		if strings.EqualFold(e.Name, ref) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return Entry{}, fmt.Errorf("%w: %q matches %d investigations", ErrAmbiguous, ref, len(matches))
	}
}

// Touch records that an investigation was opened now.
func (r *Registry) Touch(ctx context.Context, id int64) error {
	return r.update(ctx, `UPDATE investigations SET last_accessed = ? WHERE id = ?`, r.now(), id)
}

// Rename updates the display name and colour of an entry.
func (r *Registry) Rename(ctx context.Context, id int64, name string, color ir.Color) error {
	return r.update(ctx, `UPDATE investigations SET name = ?, color_rgb = ? WHERE id = ?`, name, color.String(), id)
}

// Archive hides an entry from List. The investigation file is untouched.
func (r *Registry) Archive(ctx context.Context, id int64) error {
	if err := r.update(ctx, `UPDATE investigations SET archived = 1 WHERE id = ?`, id); err != nil {
		return err
	}
	zap.L().Info("investigation archived", zap.Int64("id", id))
	return nil
}

// Remove deletes an entry. The investigation file is untouched.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	return r.update(ctx, `DELETE FROM investigations WHERE id = ?`, id)
}

// Setting returns a setting value. ok is false when the key is unset.
func (r *Registry) Setting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "read setting %s", key)
	}
	return value, true, nil
}

// SetSetting stores a setting value.
func (r *Registry) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return eris.Wrapf(err, "write setting %s", key)
	}
	return nil
}

const entryColumns = `id, name, file_path, created_at, last_accessed, archived, color_rgb`

func (r *Registry) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query investigations")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e     Entry
			color string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &e.CreatedAt, &e.LastAccessed, &e.Archived, &color); err != nil {
			return nil, eris.Wrap(err, "scan investigation")
		}
		e.Color = ir.ParseColor(color)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate investigations")
	}
	return entries, nil
}

func (r *Registry) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "update investigation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "update investigation")
	}
	if n == 0 {
		return fmt.Errorf("%w: id %v", ErrNotFound, args[len(args)-1])
	}
	return nil
}

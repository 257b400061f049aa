package store

import (
	"context"
	"database/sql"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/skop/internal/ir"
)

// Metadata keys.
const (
	metaUID           = "uid"
	metaName          = "name"
	metaDescription   = "description"
	metaColor         = "color"
	metaCreatedAt     = "created_at"
	metaSchemaVersion = "schema_version"
	metaClockSource   = "clock_source"
	metaAppVersion    = "app_version"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeMetadata(ctx context.Context, db execer, meta ir.Metadata) error {
	values := [][2]string{
		{metaUID, meta.UID},
		{metaName, meta.Name},
		{metaDescription, meta.Description},
		{metaColor, meta.Color.String()},
		{metaCreatedAt, strconv.FormatInt(meta.CreatedAt, 10)},
		{metaSchemaVersion, strconv.Itoa(meta.SchemaVersion)},
		{metaClockSource, meta.ClockSource},
		{metaAppVersion, ir.AppVersion},
	}
	for _, kv := range values {
		if err := setMeta(ctx, db, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func setMeta(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return wrapDB(err, "write metadata "+key)
	}
	return nil
}

// Metadata returns the investigation's metadata.
// Unknown keys are ignored; a malformed colour falls back to ir.DefaultColor.
func (s *Store) Metadata(ctx context.Context) (ir.Metadata, error) {
	if err := s.enter(); err != nil {
		return ir.Metadata{}, err
	}
	defer s.leave()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata ORDER BY key`)
	if err != nil {
		return ir.Metadata{}, wrapDB(err, "query metadata")
	}
	defer rows.Close()

	meta := ir.Metadata{Color: ir.DefaultColor}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return ir.Metadata{}, wrapDB(err, "scan metadata")
		}
		switch key {
		case metaUID:
			meta.UID = value
		case metaName:
			meta.Name = value
		case metaDescription:
			meta.Description = value
		case metaColor:
			meta.Color = ir.ParseColor(value)
		case metaCreatedAt:
			meta.CreatedAt, err = strconv.ParseInt(value, 10, 64)
		case metaSchemaVersion:
			meta.SchemaVersion, err = strconv.Atoi(value)
		case metaClockSource:
			meta.ClockSource = value
		}
		if err != nil {
			return ir.Metadata{}, &OpError{Op: "parse metadata " + key, Kind: ErrCorruptOrIncompatible, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return ir.Metadata{}, wrapDB(err, "iterate metadata")
	}
	return meta, nil
}

// UpdateMetadata replaces the editable metadata fields in one transaction.
func (s *Store) UpdateMetadata(ctx context.Context, name, description string, color ir.Color) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB(err, "update metadata: begin")
	}
	defer tx.Rollback()

	for _, kv := range [][2]string{
		{metaName, name},
		{metaDescription, description},
		{metaColor, color.String()},
	} {
		if err := setMeta(ctx, tx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapDB(err, "update metadata: commit")
	}

	zap.L().Info("metadata updated", zap.String("path", s.path), zap.String("name", name))
	return nil
}

// Stats summarizes an investigation's contents.
type Stats struct {
	Widgets       int   `json:"widgets"`
	ActiveWidgets int   `json:"active_widgets"`
	Versions      int   `json:"versions"`
	Lines         int64 `json:"lines"`
	FirstLine     int64 `json:"first_line,omitempty"` // µs
	LastLine      int64 `json:"last_line,omitempty"`  // µs
}

// Stats returns row counts and the captured time span.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := s.enter(); err != nil {
		return Stats{}, err
	}
	defer s.leave()

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT id) FROM widgets),
			(SELECT COUNT(DISTINCT id) FROM widgets WHERE archived_at IS NULL),
			(SELECT COUNT(*) FROM widgets)
	`).Scan(&st.Widgets, &st.ActiveWidgets, &st.Versions)
	if err != nil {
		return Stats{}, wrapDB(err, "count widgets")
	}

	var first, last sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM raw_data
	`).Scan(&st.Lines, &first, &last)
	if err != nil {
		return Stats{}, wrapDB(err, "count lines")
	}
	st.FirstLine = first.Int64
	st.LastLine = last.Int64
	return st, nil
}

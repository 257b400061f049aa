package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/skop/internal/ir"
)

// WidgetPatch holds the fields an update overrides. Nil fields are copied
// from the current version.
type WidgetPatch struct {
	Config    json.RawMessage
	Position  *ir.Position
	Size      *ir.Size
	Collapsed *bool
}

const widgetColumns = `id, version, widget_type, config_json, position_x, position_y,
	size_x, size_y, created_at, collapsed, archived_at`

// CreateWidget stores version 0 of a new widget and returns its id.
// The config must be a JSON object; it is stored in canonical form.
func (s *Store) CreateWidget(ctx context.Context, widgetType ir.WidgetType, config []byte, pos ir.Position, size ir.Size) (ir.WidgetID, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	canonical, err := s.checkConfig(widgetType, config)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDB(err, "create widget: begin")
	}
	defer tx.Rollback()

	var id ir.WidgetID
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM widgets`).Scan(&id); err != nil {
		return 0, wrapDB(err, "create widget: next id")
	}

	w := ir.WidgetVersion{
		ID:        id,
		Version:   0,
		Type:      widgetType,
		Config:    canonical,
		Position:  pos,
		Size:      size,
		CreatedAt: s.clock.Now(),
	}
	if err := insertVersion(ctx, tx, w); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapDB(err, "create widget: commit")
	}

	zap.L().Info("widget created",
		zap.Int64("widget_id", int64(id)),
		zap.String("type", string(widgetType)))
	return id, nil
}

// UpdateWidget writes version+1 of a widget: a copy of the current version
// with the patch applied. Returns the new version number, or ErrNotFound if
// the widget is unknown or archived.
func (s *Store) UpdateWidget(ctx context.Context, id ir.WidgetID, patch WidgetPatch) (int64, error) {
	w, _, err := s.UpdateWithLines(ctx, id, patch, nil)
	if err != nil {
		return 0, err
	}
	return w.Version, nil
}

// UpdateWithLines writes a new widget version and lines captured under it in
// one transaction. Readers observe either neither or both.
func (s *Store) UpdateWithLines(ctx context.Context, id ir.WidgetID, patch WidgetPatch, lines []string) (ir.WidgetVersion, []ir.LineRef, error) {
	if err := s.enter(); err != nil {
		return ir.WidgetVersion{}, nil, err
	}
	defer s.leave()

	var canonical json.RawMessage
	if patch.Config != nil {
		c, err := ir.CanonicalConfig(patch.Config)
		if err != nil {
			return ir.WidgetVersion{}, nil, &OpError{Op: fmt.Sprintf("update widget %d", id), Kind: ErrInvalidConfig, Err: err}
		}
		canonical = c
	}

	wr := s.writer(id)
	wr.mu.Lock()
	defer wr.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.WidgetVersion{}, nil, wrapDB(err, "update widget: begin")
	}
	defer tx.Rollback()

	cur, err := currentVersion(ctx, tx, id)
	if err != nil {
		return ir.WidgetVersion{}, nil, err
	}

	next := cur
	next.Version = cur.Version + 1
	next.CreatedAt = s.clock.Now()
	if canonical != nil {
		if err := s.validate(cur.Type, canonical); err != nil {
			return ir.WidgetVersion{}, nil, err
		}
		next.Config = canonical
	}
	if patch.Position != nil {
		next.Position = *patch.Position
	}
	if patch.Size != nil {
		next.Size = *patch.Size
	}
	if patch.Collapsed != nil {
		next.Collapsed = *patch.Collapsed
	}

	if err := insertVersion(ctx, tx, next); err != nil {
		return ir.WidgetVersion{}, nil, err
	}
	refs, err := s.insertLines(ctx, tx, id, next.Version, 0, lines)
	if err != nil {
		return ir.WidgetVersion{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return ir.WidgetVersion{}, nil, wrapDB(err, "update widget: commit")
	}
	wr.next[next.Version] = int64(len(lines))

	zap.L().Info("widget updated",
		zap.Int64("widget_id", int64(id)),
		zap.Int64("version", next.Version),
		zap.Int("lines", len(lines)))
	return next, refs, nil
}

// Current returns the latest version of a non-archived widget.
func (s *Store) Current(ctx context.Context, id ir.WidgetID) (ir.WidgetVersion, error) {
	if err := s.enter(); err != nil {
		return ir.WidgetVersion{}, err
	}
	defer s.leave()
	return currentVersion(ctx, s.db, id)
}

// At returns the version of a widget in effect at ts: the latest version
// created at or before ts. Archival does not hide versions from At.
//
// Returns ErrNotFound for an unknown widget and ErrNoVersionYet if the widget
// was created after ts.
func (s *Store) At(ctx context.Context, id ir.WidgetID, ts int64) (ir.WidgetVersion, error) {
	if err := s.enter(); err != nil {
		return ir.WidgetVersion{}, err
	}
	defer s.leave()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+widgetColumns+`
		FROM widgets
		WHERE id = ? AND created_at <= ?
		ORDER BY version DESC
		LIMIT 1
	`, id, ts)
	w, err := scanWidget(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ir.WidgetVersion{}, wrapDB(err, "widget at")
	}

	exists, err := widgetExists(ctx, s.db, id)
	if err != nil {
		return ir.WidgetVersion{}, err
	}
	if !exists {
		return ir.WidgetVersion{}, notFound("widget %d", id)
	}
	return ir.WidgetVersion{}, &OpError{Op: fmt.Sprintf("widget %d at %d", id, ts), Kind: ErrNoVersionYet}
}

// Archive marks a widget archived. It leaves active display and capture but
// remains available to replay. Archiving twice is a no-op.
func (s *Store) Archive(ctx context.Context, id ir.WidgetID) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	wr := s.writer(id)
	wr.mu.Lock()
	defer wr.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB(err, "archive widget: begin")
	}
	defer tx.Rollback()

	exists, err := widgetExists(ctx, tx, id)
	if err != nil {
		return err
	}
	if !exists {
		return notFound("widget %d", id)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE widgets SET archived_at = ?
		WHERE id = ? AND archived_at IS NULL
	`, s.clock.Now(), id)
	if err != nil {
		return wrapDB(err, "archive widget")
	}
	if err := tx.Commit(); err != nil {
		return wrapDB(err, "archive widget: commit")
	}

	if n, _ := res.RowsAffected(); n > 0 {
		zap.L().Info("widget archived", zap.Int64("widget_id", int64(id)))
	}
	return nil
}

// ListActive returns the current version of every non-archived widget,
// ordered by id.
func (s *Store) ListActive(ctx context.Context) ([]ir.WidgetVersion, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	return queryWidgets(ctx, s.db, `
		SELECT `+widgetColumns+`
		FROM widgets w
		WHERE archived_at IS NULL
		  AND version = (SELECT MAX(v.version) FROM widgets v WHERE v.id = w.id)
		ORDER BY id ASC
	`)
}

// History returns every version of a widget, oldest first, including
// archived widgets.
func (s *Store) History(ctx context.Context, id ir.WidgetID) ([]ir.WidgetVersion, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	versions, err := queryWidgets(ctx, s.db, `
		SELECT `+widgetColumns+`
		FROM widgets
		WHERE id = ?
		ORDER BY version ASC
	`, id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, notFound("widget %d", id)
	}
	return versions, nil
}

// WidgetsAt returns the canvas as it was at ts: for each widget created at or
// before ts, the latest version created at or before ts. Widgets archived at
// or before ts are excluded. A non-empty filter restricts the widget ids.
func (s *Store) WidgetsAt(ctx context.Context, ts int64, filter []ir.WidgetID) ([]ir.WidgetVersion, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	query := `
		SELECT ` + widgetColumns + `
		FROM widgets w
		WHERE created_at <= ?
		  AND version = (SELECT MAX(v.version) FROM widgets v WHERE v.id = w.id AND v.created_at <= ?)
		  AND (archived_at IS NULL OR archived_at > ?)`
	args := []any{ts, ts, ts}
	if len(filter) > 0 {
		in, inArgs := idList(filter)
		query += ` AND id IN (` + in + `)`
		args = append(args, inArgs...)
	}
	query += ` ORDER BY id ASC`

	return queryWidgets(ctx, s.db, query, args...)
}

// VersionChanges returns the versions >= 1 created in [from, to], ordered by
// (created_at, id, version). A non-empty filter restricts the widget ids.
func (s *Store) VersionChanges(ctx context.Context, from, to int64, filter []ir.WidgetID) ([]ir.WidgetVersion, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	query := `
		SELECT ` + widgetColumns + `
		FROM widgets
		WHERE version >= 1 AND created_at >= ? AND created_at <= ?`
	args := []any{from, to}
	if len(filter) > 0 {
		in, inArgs := idList(filter)
		query += ` AND id IN (` + in + `)`
		args = append(args, inArgs...)
	}
	query += ` ORDER BY created_at ASC, id ASC, version ASC`

	return queryWidgets(ctx, s.db, query, args...)
}

// checkConfig canonicalizes and validates a config for a new widget.
func (s *Store) checkConfig(widgetType ir.WidgetType, config []byte) (json.RawMessage, error) {
	if strings.TrimSpace(string(widgetType)) == "" {
		return nil, &OpError{Op: "create widget", Kind: ErrInvalidConfig, Err: fmt.Errorf("widget type is required")}
	}
	canonical, err := ir.CanonicalConfig(config)
	if err != nil {
		return nil, &OpError{Op: "create widget", Kind: ErrInvalidConfig, Err: err}
	}
	if err := s.validate(widgetType, canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

func (s *Store) validate(widgetType ir.WidgetType, canonical []byte) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.ValidateConfig(widgetType, canonical); err != nil {
		return &OpError{Op: fmt.Sprintf("validate %s config", widgetType), Kind: ErrInvalidConfig, Err: err}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, db queryer, id ir.WidgetID) (ir.WidgetVersion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+widgetColumns+`
		FROM widgets
		WHERE id = ? AND archived_at IS NULL
		ORDER BY version DESC
		LIMIT 1
	`, id)
	w, err := scanWidget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.WidgetVersion{}, notFound("widget %d", id)
	}
	if err != nil {
		return ir.WidgetVersion{}, wrapDB(err, "current widget")
	}
	return w, nil
}

func widgetExists(ctx context.Context, db queryer, id ir.WidgetID) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, wrapDB(err, "widget exists")
	}
	return n > 0, nil
}

func insertVersion(ctx context.Context, db execer, w ir.WidgetVersion) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO widgets (id, version, widget_type, config_json, position_x, position_y,
			size_x, size_y, created_at, collapsed, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, w.ID, w.Version, string(w.Type), string(w.Config),
		w.Position.X, w.Position.Y, w.Size.W, w.Size.H,
		w.CreatedAt, w.Collapsed)
	if err != nil {
		return wrapDB(err, fmt.Sprintf("insert widget %d version %d", w.ID, w.Version))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWidget(row rowScanner) (ir.WidgetVersion, error) {
	var (
		w        ir.WidgetVersion
		wt       string
		config   string
		archived sql.NullInt64
	)
	err := row.Scan(&w.ID, &w.Version, &wt, &config,
		&w.Position.X, &w.Position.Y, &w.Size.W, &w.Size.H,
		&w.CreatedAt, &w.Collapsed, &archived)
	if err != nil {
		return ir.WidgetVersion{}, err
	}
	w.Type = ir.WidgetType(wt)
	w.Config = json.RawMessage(config)
	if archived.Valid {
		at := archived.Int64
		w.ArchivedAt = &at
	}
	return w, nil
}

func queryWidgets(ctx context.Context, db queryer, query string, args ...any) ([]ir.WidgetVersion, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDB(err, "query widgets")
	}
	defer rows.Close()

	widgets := []ir.WidgetVersion{}
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, wrapDB(err, "scan widget")
		}
		widgets = append(widgets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "iterate widgets")
	}
	return widgets, nil
}

// idList renders a placeholder list and its arguments for an IN clause.
func idList(ids []ir.WidgetID) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = int64(id)
	}
	return strings.Join(placeholders, ", "), args
}

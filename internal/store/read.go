package store

import (
	"context"

	"github.com/roach88/skop/internal/ir"
)

const lineColumns = `id, widget_id, widget_version, timestamp, line_content, seq`

// LineKey is a position in replay order.
type LineKey struct {
	Timestamp     int64
	WidgetID      ir.WidgetID
	WidgetVersion int64
	Seq           int64
}

// KeyOf returns the replay-order key of a line.
func KeyOf(l ir.RawLine) LineKey {
	return LineKey{Timestamp: l.Timestamp, WidgetID: l.WidgetID, WidgetVersion: l.WidgetVersion, Seq: l.Seq}
}

// LinePage selects one page of lines in replay order.
type LinePage struct {
	From, To int64 // inclusive µs bounds
	// After, when set, excludes every line at or before this key.
	After   *LineKey
	Widgets []ir.WidgetID
	Limit   int
}

// ReadLines returns one page of lines with timestamps in [From, To], ordered
// by (timestamp, widget_id, widget_version, seq). Pages are keyset-paginated
// on the replay index; pass the last line's key as After for the next page.
func (s *Store) ReadLines(ctx context.Context, page LinePage) ([]ir.RawLine, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	query := `SELECT ` + lineColumns + ` FROM raw_data WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{page.From, page.To}
	if page.After != nil {
		a := page.After
		query += ` AND (timestamp, widget_id, widget_version, seq) > (?, ?, ?, ?)`
		args = append(args, a.Timestamp, a.WidgetID, a.WidgetVersion, a.Seq)
	}
	if len(page.Widgets) > 0 {
		in, inArgs := idList(page.Widgets)
		query += ` AND widget_id IN (` + in + `)`
		args = append(args, inArgs...)
	}
	query += ` ORDER BY timestamp ASC, widget_id ASC, widget_version ASC, seq ASC`
	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
	}

	return s.queryLines(ctx, query, args...)
}

// LinesForWidget returns every line of a widget across all versions, ordered
// by (version, seq).
func (s *Store) LinesForWidget(ctx context.Context, id ir.WidgetID) ([]ir.RawLine, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	return s.queryLines(ctx, `
		SELECT `+lineColumns+`
		FROM raw_data
		WHERE widget_id = ?
		ORDER BY widget_version ASC, seq ASC
	`, id)
}

// LinesForVersion returns the lines of one widget version ordered by seq.
func (s *Store) LinesForVersion(ctx context.Context, id ir.WidgetID, version int64) ([]ir.RawLine, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	return s.queryLines(ctx, `
		SELECT `+lineColumns+`
		FROM raw_data
		WHERE widget_id = ? AND widget_version = ?
		ORDER BY seq ASC
	`, id, version)
}

// RecentLines returns the last limit lines of a widget across all versions,
// oldest first. Used to restore a widget's output buffer on reopen.
func (s *Store) RecentLines(ctx context.Context, id ir.WidgetID, limit int) ([]ir.RawLine, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	if limit <= 0 {
		return []ir.RawLine{}, nil
	}
	return s.queryLines(ctx, `
		SELECT `+lineColumns+` FROM (
			SELECT `+lineColumns+`
			FROM raw_data
			WHERE widget_id = ?
			ORDER BY timestamp DESC, widget_version DESC, seq DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, widget_version ASC, seq ASC
	`, id, limit)
}

// CountLines returns the number of captured lines.
func (s *Store) CountLines(ctx context.Context) (int64, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_data`).Scan(&n); err != nil {
		return 0, wrapDB(err, "count lines")
	}
	return n, nil
}

// Span returns the first and last line timestamps. ok is false when no
// lines have been captured.
func (s *Store) Span(ctx context.Context) (first, last int64, ok bool, err error) {
	if err := s.enter(); err != nil {
		return 0, 0, false, err
	}
	defer s.leave()

	var n int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(timestamp), 0), COALESCE(MAX(timestamp), 0) FROM raw_data
	`).Scan(&n, &first, &last)
	if err != nil {
		return 0, 0, false, wrapDB(err, "line span")
	}
	return first, last, n > 0, nil
}

func (s *Store) queryLines(ctx context.Context, query string, args ...any) ([]ir.RawLine, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDB(err, "query lines")
	}
	defer rows.Close()

	lines := []ir.RawLine{}
	for rows.Next() {
		var l ir.RawLine
		if err := rows.Scan(&l.RowID, &l.WidgetID, &l.WidgetVersion, &l.Timestamp, &l.Text, &l.Seq); err != nil {
			return nil, wrapDB(err, "scan line")
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "iterate lines")
	}
	return lines, nil
}

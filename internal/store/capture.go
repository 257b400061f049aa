package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/skop/internal/ir"
)

// widgetWriter serializes appends to one widget and caches the next Seq per
// version so steady-state appends skip the MAX(seq) lookup.
type widgetWriter struct {
	mu   sync.Mutex
	next map[int64]int64 // version -> next seq
}

func (s *Store) writer(id ir.WidgetID) *widgetWriter {
	s.writersMu.Lock()
	defer s.writersMu.Unlock()
	w, ok := s.writers[id]
	if !ok {
		w = &widgetWriter{next: make(map[int64]int64)}
		s.writers[id] = w
	}
	return w
}

// Append durably records one line of producer output for (id, version).
//
// The line is stamped with the capture clock and the next Seq for the pair.
// Returns ErrNotFound if the version does not exist or the widget is
// archived. The line is committed before Append returns.
func (s *Store) Append(ctx context.Context, id ir.WidgetID, version int64, text string) (ir.LineRef, error) {
	refs, err := s.AppendBatch(ctx, id, version, []string{text})
	if err != nil {
		return ir.LineRef{}, err
	}
	return refs[0], nil
}

// AppendBatch records several lines for (id, version) in one transaction.
// Seqs are contiguous and timestamps non-decreasing in slice order.
func (s *Store) AppendBatch(ctx context.Context, id ir.WidgetID, version int64, lines []string) ([]ir.LineRef, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	if len(lines) == 0 {
		return []ir.LineRef{}, nil
	}

	wr := s.writer(id)
	wr.mu.Lock()
	defer wr.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDB(err, "append: begin")
	}
	defer tx.Rollback()

	if err := requireWritable(ctx, tx, id, version); err != nil {
		return nil, err
	}

	seq, ok := wr.next[version]
	if !ok {
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(seq) + 1, 0) FROM raw_data
			WHERE widget_id = ? AND widget_version = ?
		`, id, version).Scan(&seq); err != nil {
			return nil, wrapDB(err, "append: next seq")
		}
	}

	refs, err := s.insertLines(ctx, tx, id, version, seq, lines)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapDB(err, "append: commit")
	}
	wr.next[version] = seq + int64(len(lines))
	return refs, nil
}

// requireWritable checks that (id, version) exists and the widget is not
// archived.
func requireWritable(ctx context.Context, tx *sql.Tx, id ir.WidgetID, version int64) error {
	var archived sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		SELECT archived_at FROM widgets WHERE id = ? AND version = ?
	`, id, version).Scan(&archived)
	if err == sql.ErrNoRows {
		return notFound("widget %d version %d", id, version)
	}
	if err != nil {
		return wrapDB(err, "append: lookup widget")
	}
	if archived.Valid {
		return notFound("widget %d is archived", id)
	}
	return nil
}

func (s *Store) insertLines(ctx context.Context, tx *sql.Tx, id ir.WidgetID, version, seq int64, lines []string) ([]ir.LineRef, error) {
	refs := make([]ir.LineRef, 0, len(lines))
	if len(lines) == 0 {
		return refs, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_data (widget_id, widget_version, timestamp, line_content, seq)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, wrapDB(err, "append: prepare")
	}
	defer stmt.Close()

	for i, line := range lines {
		ref := ir.LineRef{
			WidgetID:      id,
			WidgetVersion: version,
			Seq:           seq + int64(i),
			Timestamp:     s.clock.Now(),
		}
		res, err := stmt.ExecContext(ctx, id, version, ref.Timestamp, sanitize(line), ref.Seq)
		if err != nil {
			return nil, wrapDB(err, fmt.Sprintf("append: insert widget %d seq %d", id, ref.Seq))
		}
		if ref.RowID, err = res.LastInsertId(); err != nil {
			return nil, wrapDB(err, "append: row id")
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// sanitize replaces invalid UTF-8 with U+FFFD and drops a trailing line
// terminator.
func sanitize(line string) string {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return strings.ToValidUTF8(line, "\uFFFD")
}

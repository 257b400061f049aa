package ir

import (
	"encoding/json"
	"time"
)

// WidgetID identifies a widget within one investigation.
// It is stable for the widget's lifetime and shared by all of its versions.
type WidgetID int64

// WidgetType is the type tag of a widget (e.g. "raw_command", "about").
// Capabilities for a type are resolved by the widgetspec catalog.
type WidgetType string

// Position is a widget's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a widget's extent on the canvas.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Metadata describes one investigation unit.
type Metadata struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Color         Color  `json:"color"`
	CreatedAt     int64  `json:"created_at"` // µs
	SchemaVersion int    `json:"schema_version"`
	ClockSource   string `json:"clock_source"`
}

// WidgetVersion is an immutable snapshot of a widget's configuration,
// position and size. Version 0 is written on creation; every edit writes
// version+1.
type WidgetVersion struct {
	ID         WidgetID        `json:"id"`
	Version    int64           `json:"version"`
	Type       WidgetType      `json:"type"`
	Config     json.RawMessage `json:"config"` // canonical JSON object
	Position   Position        `json:"position"`
	Size       Size            `json:"size"`
	CreatedAt  int64           `json:"created_at"` // µs
	Collapsed  bool            `json:"collapsed"`
	ArchivedAt *int64          `json:"archived_at,omitempty"` // µs
}

// Archived reports whether the widget was archived when this row was read.
func (v WidgetVersion) Archived() bool {
	return v.ArchivedAt != nil
}

// RawLine is one captured line of producer output.
type RawLine struct {
	RowID         int64    `json:"row_id"`
	WidgetID      WidgetID `json:"widget_id"`
	WidgetVersion int64    `json:"widget_version"`
	Timestamp     int64    `json:"timestamp"` // µs
	Text          string   `json:"text"`
	Seq           int64    `json:"seq"` // 0-based within (widget, version)
}

// LineRef identifies a line accepted by the capture sink.
type LineRef struct {
	RowID         int64    `json:"row_id"`
	WidgetID      WidgetID `json:"widget_id"`
	WidgetVersion int64    `json:"widget_version"`
	Seq           int64    `json:"seq"`
	Timestamp     int64    `json:"timestamp"`
}

// Micros converts a wall time to capture-clock microseconds.
func Micros(t time.Time) int64 {
	return t.UnixMicro()
}

// TimeOf converts capture-clock microseconds back to a wall time.
func TimeOf(us int64) time.Time {
	return time.UnixMicro(us)
}

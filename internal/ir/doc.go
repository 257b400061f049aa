// Package ir provides the shared domain types for skop investigations.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Timestamps are int64 microseconds read from one capture clock per
//     investigation; they are never reconciled across hosts
//   - Widget versions are immutable; an edit is a new row with a higher version
//   - Raw lines are immutable; (widget, version, seq) identifies a line
//   - All JSON tags use snake_case
package ir

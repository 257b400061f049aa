// Package harness runs replay scenarios: scripted capture sessions recorded
// into a throwaway investigation under a manual clock, then replayed and
// rendered as a text trace.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: edit_during_capture
//	description: "Lines and an edit interleave in capture order"
//	steps:
//	  - at: 100
//	    create: { type: raw_command, config: { cmd: "uptime" } }
//	  - at: 100
//	    append: { widget: 1, text: "a" }
//	  - at: 110
//	    update: { widget: 1, config: { cmd: "df" } }
//	  - at: 130
//	    archive: { widget: 1 }
//	replay:
//	  rate: 2
//	  from: 100
//	  to: 200
//	  widgets: [1]
//	  seek: 105
//	  snapshot: true
//	assertions:
//	  - type: event_count
//	    count: 4
//	  - type: trace_contains
//	    line: '100 line w=1 v=0 seq=0 delay=0s "a"'
//	  - type: text_order
//	    texts: ["a", "b"]
//
// Every step sets the capture clock to its "at" time before running, so
// traces are identical across runs.
//
// # Assertion Types
//
//   - event_count: the replay produced exactly Count events
//   - trace_contains: a trace line equals Line
//   - text_order: line texts appear in the given order (gaps allowed)
//   - widget_version: the last event of Widget carried version Version
//
// # Golden Traces
//
// RunWithGolden compares the rendered trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

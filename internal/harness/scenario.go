package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/skop/internal/ir"
)

// Scenario is one scripted capture session and the replay to check.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against a fresh investigation.
	Steps []Step `yaml:"steps"`

	// Replay configures the playback that produces the trace.
	Replay ReplaySpec `yaml:"replay"`

	// Assertions validate the trace. Optional when a golden file is used.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one store action at a fixed capture time. Exactly one of the
// action fields must be set.
type Step struct {
	// At is the capture clock reading in µs while the step runs.
	At int64 `yaml:"at"`

	Create  *CreateStep  `yaml:"create,omitempty"`
	Append  *AppendStep  `yaml:"append,omitempty"`
	Update  *UpdateStep  `yaml:"update,omitempty"`
	Archive *ArchiveStep `yaml:"archive,omitempty"`

	// ExpectError, when set, requires the step to fail with an error whose
	// message contains this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// CreateStep creates a widget. Ids are assigned 1, 2, ... in creation order.
type CreateStep struct {
	Type     ir.WidgetType  `yaml:"type"`
	Config   map[string]any `yaml:"config,omitempty"`
	Position *ir.Position   `yaml:"position,omitempty"`
	Size     *ir.Size       `yaml:"size,omitempty"`
}

// AppendStep captures output lines. Version defaults to the widget's
// current version.
type AppendStep struct {
	Widget  ir.WidgetID `yaml:"widget"`
	Version *int64      `yaml:"version,omitempty"`
	Text    string      `yaml:"text,omitempty"`
	Lines   []string    `yaml:"lines,omitempty"`
}

// UpdateStep edits a widget, optionally recording lines in the same
// transaction.
type UpdateStep struct {
	Widget    ir.WidgetID    `yaml:"widget"`
	Config    map[string]any `yaml:"config,omitempty"`
	Position  *ir.Position   `yaml:"position,omitempty"`
	Size      *ir.Size       `yaml:"size,omitempty"`
	Collapsed *bool          `yaml:"collapsed,omitempty"`
	Lines     []string       `yaml:"lines,omitempty"`
}

// ArchiveStep archives a widget.
type ArchiveStep struct {
	Widget ir.WidgetID `yaml:"widget"`
}

// ReplaySpec configures playback. Unset bounds cover all captured data.
type ReplaySpec struct {
	Rate     float64       `yaml:"rate,omitempty"`
	From     *int64        `yaml:"from,omitempty"`
	To       *int64        `yaml:"to,omitempty"`
	Widgets  []ir.WidgetID `yaml:"widgets,omitempty"`
	Seek     *int64        `yaml:"seek,omitempty"`
	Snapshot bool          `yaml:"snapshot,omitempty"`
	PageSize int           `yaml:"page_size,omitempty"`
}

// Assertion validates the replay trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Count   int         `yaml:"count,omitempty"`
	Line    string      `yaml:"line,omitempty"`
	Texts   []string    `yaml:"texts,omitempty"`
	Widget  ir.WidgetID `yaml:"widget,omitempty"`
	Version int64       `yaml:"version,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount    = "event_count"
	AssertTraceContains = "trace_contains"
	AssertTextOrder     = "text_order"
	AssertWidgetVersion = "widget_version"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir whose name matches the glob
// pattern (all files when pattern is empty), sorted by file name.
func LoadScenarios(dir, pattern string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*Scenario
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, s.Name)
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		n := 0
		for _, set := range []bool{step.Create != nil, step.Append != nil, step.Update != nil, step.Archive != nil} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of create, append, update, archive is required", i)
		}
		if step.Create != nil && step.Create.Type == "" {
			return fmt.Errorf("steps[%d]: create.type is required", i)
		}
		if step.Append != nil && step.Append.Text == "" && len(step.Append.Lines) == 0 {
			return fmt.Errorf("steps[%d]: append needs text or lines", i)
		}
	}

	if s.Replay.Rate < 0 {
		return fmt.Errorf("replay.rate must be positive")
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertEventCount, AssertWidgetVersion:
		case AssertTraceContains:
			if a.Line == "" {
				return fmt.Errorf("assertions[%d]: trace_contains requires line", i)
			}
		case AssertTextOrder:
			if len(a.Texts) == 0 {
				return fmt.Errorf("assertions[%d]: text_order requires texts", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}

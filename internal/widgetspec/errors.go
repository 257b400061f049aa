package widgetspec

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

var (
	// ErrUnknownType is returned for a widget type missing from the catalog.
	ErrUnknownType = errors.New("unknown widget type")

	// ErrNotProducer is returned when asked to run a render-only widget.
	ErrNotProducer = errors.New("widget type does not produce output")
)

// ConfigError represents a config validation error with source position.
type ConfigError struct {
	Type    string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s config:%d:%d: %s", e.Type, e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s config: %s", e.Type, e.Message)
}

// formatCUEError extracts the first error and its position from a CUE error.
func formatCUEError(widgetType string, err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Type: widgetType, Message: err.Error()}
	}

	first := errs[0]
	ce := &ConfigError{Type: widgetType, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

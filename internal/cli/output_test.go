package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/registry"
	"github.com/roach88/skop/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"widgets": 2}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E_NOT_FOUND", "no such investigation", map[string]string{"ref": "x"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no such investigation", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("E_FAILED", "capture failed", "disk full"))
	assert.Contains(t, buf.String(), "Error [E_FAILED]: capture failed")
	assert.Contains(t, buf.String(), "Details: disk full")
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("capturing %d widget(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "capturing 3 widget(s)\n", diag.String())

	formatter.Verbose = false
	formatter.VerboseLog("hidden")
	assert.NotContains(t, diag.String(), "hidden")
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := WrapExitError(ExitCommandError, "cannot open", cause)

	assert.Equal(t, "cannot open: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
		json string
	}{
		{&store.OpError{Op: "open", Kind: store.ErrNotFound}, ExitCommandError, "E_NOT_FOUND"},
		{fmt.Errorf("%w: x", registry.ErrNotFound), ExitCommandError, "E_NOT_FOUND"},
		{&store.OpError{Op: "create widget", Kind: store.ErrInvalidConfig}, ExitCommandError, "E_INVALID_CONFIG"},
		{&store.OpError{Op: "open", Kind: store.ErrAlreadyOpen}, ExitCommandError, "E_ALREADY_OPEN"},
		{&store.OpError{Op: "append", Kind: store.ErrStoreUnavailable}, ExitFailure, "E_UNAVAILABLE"},
		{errors.New("other"), ExitFailure, "E_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			assert.Equal(t, tt.code, classify("msg", tt.err).Code)
			assert.Equal(t, tt.json, errorCode(tt.err))
		})
	}
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("amber")
	require.NoError(t, err)
	assert.Equal(t, "Amber", colorLabel(c))

	c, err = parseColor("0.1, 0.2, 0.3")
	require.NoError(t, err)
	assert.Equal(t, "0.1,0.2,0.3", c.String())

	_, err = parseColor("mauve")
	assert.Error(t, err)
	_, err = parseColor("2,0,0")
	assert.Error(t, err)
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "[+0:00.000]", formatOffset(0))
	assert.Equal(t, "[+1:05.250]", formatOffset(65_250_000))
	assert.Equal(t, "[-0:01.000]", formatOffset(-1_000_000))
}

func TestParseWidgetID(t *testing.T) {
	id, err := parseWidgetID("w3")
	require.NoError(t, err)
	assert.EqualValues(t, 3, id)

	_, err = parseWidgetID("0")
	assert.Error(t, err)
	_, err = parseWidgetID("abc")
	assert.Error(t, err)
}

func TestOutputWidgetTable(t *testing.T) {
	buf := &bytes.Buffer{}
	widgets := []ir.WidgetVersion{
		{ID: 1, Version: 2, Type: "raw_command", Config: json.RawMessage(`{"cmd":"uptime"}`)},
		{ID: 4, Version: 0, Type: "cpu_monitor", Config: json.RawMessage(`{}`)},
	}
	require.NoError(t, outputWidgetTable(buf, widgets))

	out := buf.String()
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, `{"cmd":"uptime"}`)
	assert.Contains(t, out, "cpu_monitor")
	assert.Equal(t, 1, strings.Count(out, "raw_command"))
}

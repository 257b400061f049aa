package widgetspec

import (
	_ "embed"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/rotisserie/eris"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/producer"
)

//go:embed schemas.cue
var schemasCUE string

// TypeInfo describes a widget type's capabilities.
type TypeInfo struct {
	Type        ir.WidgetType
	Title       string
	Produces    bool
	Renders     bool
	DefaultSize ir.Size
}

var builtin = []TypeInfo{
	{Type: "raw_command", Title: "Raw Command", Produces: true, Renders: true, DefaultSize: ir.Size{W: 500, H: 400}},
	{Type: "cpu_monitor", Title: "CPU Monitor", Produces: true, Renders: true, DefaultSize: ir.Size{W: 600, H: 300}},
	{Type: "system_info", Title: "System Info", Produces: true, Renders: true, DefaultSize: ir.Size{W: 500, H: 400}},
	{Type: "process_monitor", Title: "Process Monitor", Produces: true, Renders: true, DefaultSize: ir.Size{W: 700, H: 500}},
	{Type: "network_monitor", Title: "Network Monitor", Produces: true, Renders: true, DefaultSize: ir.Size{W: 700, H: 500}},
	{Type: "about", Title: "About", Produces: false, Renders: true, DefaultSize: ir.Size{W: 400, H: 300}},
}

// Config is a resolved widget config with schema defaults applied.
// Fields a type does not define stay zero.
type Config struct {
	Cmd             string `json:"cmd"`
	Mode            string `json:"mode"`
	IntervalSeconds int    `json:"interval_seconds"`
	InfoType        string `json:"info_type"`
}

// Catalog resolves widget types to capabilities, validates configs against
// their CUE schemas and builds producers.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so all CUE
// evaluation is serialized.
type Catalog struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas cue.Value
	types   map[ir.WidgetType]TypeInfo
}

// New compiles the built-in widget schemas.
func New() (*Catalog, error) {
	ctx := cuecontext.New()
	schemas := ctx.CompileString(schemasCUE, cue.Filename("schemas.cue"))
	if err := schemas.Err(); err != nil {
		return nil, eris.Wrap(formatCUEError("schemas", err), "compile widget schemas")
	}

	c := &Catalog{ctx: ctx, schemas: schemas, types: make(map[ir.WidgetType]TypeInfo)}
	for _, ti := range builtin {
		if !schemas.LookupPath(definition(ti.Type)).Exists() {
			return nil, eris.Errorf("widget type %q has no schema", ti.Type)
		}
		c.types[ti.Type] = ti
	}
	return c, nil
}

// Lookup returns the capabilities of a widget type.
func (c *Catalog) Lookup(t ir.WidgetType) (TypeInfo, bool) {
	ti, ok := c.types[t]
	return ti, ok
}

// Types lists every known widget type ordered by name.
func (c *Catalog) Types() []TypeInfo {
	out := make([]TypeInfo, 0, len(c.types))
	for _, ti := range c.types {
		out = append(out, ti)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// ValidateConfig checks config against the schema for t.
// It satisfies store.ConfigValidator.
func (c *Catalog) ValidateConfig(t ir.WidgetType, config []byte) error {
	_, err := c.Resolve(t, config)
	return err
}

// Resolve validates config for t and returns it with defaults applied.
func (c *Catalog) Resolve(t ir.WidgetType, config []byte) (Config, error) {
	if _, ok := c.types[t]; !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if len(config) == 0 {
		config = []byte("{}")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.ctx.CompileBytes(config, cue.Filename("config.json"))
	if err := data.Err(); err != nil {
		return Config{}, formatCUEError(string(t), err)
	}
	v := c.schemas.LookupPath(definition(t)).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(string(t), err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(string(t), err)
	}
	return cfg, nil
}

// Producer builds the output producer for a widget version.
// Returns ErrNotProducer for render-only types.
func (c *Catalog) Producer(w ir.WidgetVersion) (producer.Producer, error) {
	ti, ok := c.types[w.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	if !ti.Produces {
		return nil, fmt.Errorf("%w: %q", ErrNotProducer, w.Type)
	}
	cfg, err := c.Resolve(w.Type, w.Config)
	if err != nil {
		return nil, err
	}
	cmd, err := commandFor(w.Type, cfg)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func commandFor(t ir.WidgetType, cfg Config) (producer.Command, error) {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	switch t {
	case "raw_command":
		mode, err := producer.ParseMode(cfg.Mode)
		if err != nil {
			return producer.Command{}, err
		}
		return producer.Shell(cfg.Cmd, mode, interval), nil
	case "cpu_monitor":
		return producer.Command{
			Program: "vmstat",
			Args:    []string{strconv.Itoa(cfg.IntervalSeconds)},
			Mode:    producer.ModeContinuous,
		}, nil
	case "system_info":
		return producer.Shell(systemInfoScript(cfg.InfoType, runtime.GOOS), producer.ModeOneShot, 0), nil
	case "process_monitor":
		return producer.Shell("ps aux", producer.ModePeriodic, interval), nil
	case "network_monitor":
		return producer.Shell("netstat -an", producer.ModePeriodic, interval), nil
	default:
		return producer.Command{}, fmt.Errorf("%w: %q", ErrNotProducer, t)
	}
}

func systemInfoScript(infoType, goos string) string {
	if goos == "darwin" {
		switch infoType {
		case "hardware":
			return "system_profiler SPHardwareDataType"
		case "activity":
			return "top -l 1 -o cpu -n 10"
		default:
			return "uname -a && sw_vers"
		}
	}
	switch infoType {
	case "hardware":
		return "lscpu"
	case "activity":
		return "top -b -n 1 | head -n 20"
	default:
		return "uname -a && cat /etc/os-release"
	}
}

func definition(t ir.WidgetType) cue.Path {
	return cue.ParsePath("#" + string(t))
}

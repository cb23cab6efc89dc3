// Package cmdutil holds the setup shared by infodump and infoview.
package cmdutil

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/Metrological/jscinspect/corefile"
)

// LogLevels are the values accepted by the --debug flag.
var LogLevels = []string{"debug", "info", "warn", "error"}

// NewLogger returns a logfmt logger on w that drops messages below lvl.
func NewLogger(w io.Writer, lvl string) (log.Logger, error) {
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC), nil
}

// CoreFlags are the flags every command uses to open a core file.
type CoreFlags struct {
	Core    string
	Exe     string
	Layout  string
	Debug   string
	Verbose bool
}

// Register adds the flags and the core file argument to app.
func (f *CoreFlags) Register(app *kingpin.Application) {
	app.Arg("core", "Core file to read.").Required().ExistingFileVar(&f.Core)
	app.Flag("exe", "Executable that produced the core. Defaults to the name recorded in the core, next to it.").
		PlaceHolder("PATH").ExistingFileVar(&f.Exe)
	app.Flag("layout", "YAML file overriding the type and field names of the ring.").
		PlaceHolder("PATH").ExistingFileVar(&f.Layout)
	app.Flag("debug", "Log level.").Default("warn").EnumVar(&f.Debug, LogLevels...)
	app.Flag("verbose", "Log every ELF segment and DWARF type while loading (needs --debug=debug).").BoolVar(&f.Verbose)
}

// LoadLayout loads the layout named by --layout, or the default.
func (f *CoreFlags) LoadLayout() (corefile.Layout, error) {
	if f.Layout == "" {
		return corefile.DefaultLayout(), nil
	}
	return corefile.LoadLayout(f.Layout)
}

// Open opens the core file and its executable.
func (f *CoreFlags) Open(logger log.Logger) (*corefile.Program, error) {
	level.Info(logger).Log("msg", "loading core file", "core", f.Core, "exe", f.Exe)
	p, err := corefile.Open(f.Core, &corefile.OpenOptions{
		ExecutablePath: f.Exe,
		Logger:         logger,
		Verbose:        f.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open core file: %w", err)
	}
	level.Info(logger).Log("msg", "loaded core file", "arch", p.Arch.Name, "pid", p.PID, "globals", p.GlobalVars.Len())
	return p, nil
}

// ParseAddr parses a hex address with an optional 0x prefix.
func ParseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return addr, nil
}

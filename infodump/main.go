// Command infodump prints the JSC compilation-info rings found in a core file.
//
//	infodump [--exe=PATH] [--var=NAME...] core
//	infodump --addr=0x7f... --type=JSC::CompilationInfo core
//
// With no --var or --addr, every global variable whose type is the ring or
// entry type is printed.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/go-kit/log/level"

	"github.com/Metrological/jscinspect/corefile"
	"github.com/Metrological/jscinspect/internal/cmdutil"
)

func main() {
	app := kingpin.New("infodump", "Print JSC compilation-info rings found in a core file.")
	cmd := &dumpCommand{}
	cmd.core.Register(app)
	app.Flag("var", "Qualified name of a global to print. Repeatable.").PlaceHolder("NAME").StringsVar(&cmd.vars)
	app.Flag("addr", "Print the object at this hex address. Requires --type.").StringVar(&cmd.addr)
	app.Flag("type", "Type of the object at --addr.").StringVar(&cmd.typeName)
	app.Flag("no-color", "Disable colored output.").BoolVar(&color.NoColor)
	app.Action(cmd.run)
	kingpin.MustParse(app.Parse(os.Args[1:]))
}

type dumpCommand struct {
	core     cmdutil.CoreFlags
	vars     []string
	addr     string
	typeName string
}

func (cmd *dumpCommand) run(*kingpin.ParseContext) error {
	if (cmd.addr == "") != (cmd.typeName == "") {
		return fmt.Errorf("--addr and --type must be used together")
	}
	logger, err := cmdutil.NewLogger(os.Stderr, cmd.core.Debug)
	if err != nil {
		return err
	}
	layout, err := cmd.core.LoadLayout()
	if err != nil {
		return err
	}
	program, err := cmd.core.Open(logger)
	if err != nil {
		return err
	}
	defer program.Close()

	d := newDumper(os.Stdout, corefile.NewDispatcher(layout))
	switch {
	case cmd.addr != "":
		addr, err := cmdutil.ParseAddr(cmd.addr)
		if err != nil {
			return err
		}
		t := program.FindType(cmd.typeName)
		if t == nil {
			return fmt.Errorf("unknown type %s", cmd.typeName)
		}
		v, err := program.Value(addr, t)
		if err != nil {
			return fmt.Errorf("failed to read %s at 0x%x: %w", cmd.typeName, addr, err)
		}
		d.dump(fmt.Sprintf("(%s)0x%x", t, addr), v)

	case len(cmd.vars) > 0:
		for _, name := range cmd.vars {
			v, ok := program.GlobalVars.FindName(name)
			if !ok {
				level.Warn(logger).Log("msg", "global variable not found", "var", name)
				continue
			}
			d.dump(v.FullName(), v.Value)
		}

	default:
		for v := range program.GlobalVars.All() {
			if d.disp.Matches(v.Value.TypeName()) {
				d.dump(v.FullName(), v.Value)
			}
		}
	}
	d.summary()
	return nil
}

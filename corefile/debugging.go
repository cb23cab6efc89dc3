package corefile

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// sanityChecks enables possibly-expensive assertion checks.
const sanityChecks = true

// debugLogger wraps the logger passed in OpenOptions. Messages logged with
// verbosef are dropped unless OpenOptions.Verbose is set, since they are
// emitted once per DWARF type or ELF segment.
type debugLogger struct {
	logger  log.Logger
	verbose bool
}

func newDebugLogger(l log.Logger, verbose bool) debugLogger {
	if l == nil {
		l = log.NewNopLogger()
	}
	return debugLogger{logger: l, verbose: verbose}
}

func (d debugLogger) logf(format string, args ...interface{}) {
	level.Debug(d.logger).Log("msg", fmt.Sprintf(format, args...))
}

func (d debugLogger) verbosef(format string, args ...interface{}) {
	if d.verbose {
		level.Debug(d.logger).Log("msg", fmt.Sprintf(format, args...), "verbose", true)
	}
}

func (d debugLogger) warn(msg string, keyvals ...interface{}) {
	level.Warn(d.logger).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

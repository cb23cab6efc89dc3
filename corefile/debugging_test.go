package corefile

import (
	"flag"
	"os"
	"testing"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var debugLevel = flag.Int("debuglevel", 0, "debug verbosity level: 1 logs debug messages, 2 adds verbose messages")

// testLog is passed to every Program built by the tests.
var testLog = newDebugLogger(nil, false)

func TestMain(m *testing.M) {
	flag.Parse()
	if *debugLevel > 0 {
		l := level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), level.AllowDebug())
		testLog = newDebugLogger(l, *debugLevel > 1)
	}
	os.Exit(m.Run())
}

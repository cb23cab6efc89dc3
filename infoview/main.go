// Command infoview serves a web page for browsing the global variables of a
// core file, with compilation-info rings rendered as lists of entries.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"

	"github.com/Metrological/jscinspect/corefile"
	"github.com/Metrological/jscinspect/internal/cmdutil"
)

func main() {
	app := kingpin.New("infoview", "Browse the globals of a core file in a web browser.")
	var (
		core cmdutil.CoreFlags
		port int
	)
	core.Register(app)
	app.Flag("port", "Port to run the HTTP server on.").Default("8092").IntVar(&port)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := cmdutil.NewLogger(os.Stderr, core.Debug)
	app.FatalIfError(err, "")
	layout, err := core.LoadLayout()
	app.FatalIfError(err, "")
	program, err := core.Open(logger)
	app.FatalIfError(err, "")
	defer program.Close()

	s := newServer(program, corefile.NewDispatcher(layout), logger)
	if core.Layout != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		go func() {
			if err := s.watchLayout(ctx, core.Layout); err != nil {
				level.Warn(logger).Log("msg", "layout will not be reloaded", "err", err)
			}
		}()
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	fmt.Printf("Ready. Point your browser to localhost:%d\n", port)
	if err := srv.ListenAndServe(); err != nil {
		level.Error(logger).Log("msg", "server stopped", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log/level"

	"github.com/Metrological/jscinspect/corefile"
)

// watchLayout reloads the layout file whenever it changes and swaps in a new
// dispatcher. A layout that fails to load is logged and the old one is kept.
// It returns when ctx is done.
func (s *server) watchLayout(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			layout, err := corefile.LoadLayout(path)
			if err != nil {
				level.Warn(s.logger).Log("msg", "keeping old layout", "file", path, "err", err)
				continue
			}
			s.disp.Store(corefile.NewDispatcher(layout))
			level.Info(s.logger).Log("msg", "reloaded layout", "file", path, "buffer", layout.Tags.Buffer, "entry", layout.Tags.Entry)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			level.Warn(s.logger).Log("msg", "watching layout", "err", err)
		}
	}
}

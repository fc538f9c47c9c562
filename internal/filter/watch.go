package filter

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a supplementary filesystem watch on the rules file and calls
// ForceReload on every write event, as a latency improvement layered on top
// of (never replacing) the mandatory per-request ReloadIfChanged call. It
// blocks until ctx is canceled or the watcher fails to start.
func (f *Filter) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if f.sink != nil {
			f.sink.Warning("filter watch: " + err.Error())
		}
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(f.path); err != nil {
		if f.sink != nil {
			f.sink.Warning("filter watch: " + err.Error())
		}
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
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f.ForceReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if f.sink != nil {
				f.sink.Warning("filter watch error: " + err.Error())
			}
		}
	}
}

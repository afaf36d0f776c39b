package descriptor

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Watch emits a fresh Descriptor whenever the file at path is written
// or replaced, until ctx is canceled. The first value is sent only
// after a change; callers wanting the current contents should Read
// first. Rewrites that fail to parse are logged and skipped.
//
// Watch reads through the OS filesystem; fsnotify has no view into an
// afero memory fs.
func Watch(ctx context.Context, path string) (<-chan Descriptor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and the broker daemon both replace
	// the file via rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan Descriptor, 1)
	go func() {
		defer watcher.Close()
		defer close(out)

		abs, _ := filepath.Abs(path)
		fs := afero.NewOsFs()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				d, err := Read(fs, path)
				if err != nil {
					slog.Warn("ignoring unreadable descriptor rewrite", "path", path, "error", err)
					continue
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("descriptor watch error", "path", path, "error", err)
			}
		}
	}()

	return out, nil
}

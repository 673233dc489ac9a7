package assets

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher flags the snapshot stale when a loaded file changes on disk. It never reloads.
type Watcher struct {
	snapshot *Snapshot
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
}

func NewWatcher(snapshot *Snapshot, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		snapshot: snapshot,
		logger:   logger,
		watcher:  fw,
		files:    make(map[string]struct{}, len(snapshot.Files)),
	}
	dirs := map[string]struct{}{}
	for _, file := range snapshot.Files {
		abs, err := filepath.Abs(file)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	// Directories are watched so editors that replace files by rename are still seen.
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run consumes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("asset watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	if _, ok := w.files[abs]; !ok {
		return
	}
	if !w.snapshot.Stale() {
		w.logger.Warn("asset changed on disk; restart to pick it up",
			zap.String("path", abs), zap.String("op", event.Op.String()))
	}
	w.snapshot.MarkStale()
}

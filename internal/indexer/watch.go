package indexer

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce is how long Watch waits for more changes before rebuilding.
const DefaultDebounce = 200 * time.Millisecond

// Watch runs a build, then rebuilds whenever a file in one of the directories
// referenced by the manifest tree changes. Build errors are passed to onErr
// and do not stop watching. Watch returns when ctx is cancelled.
func (ix *Indexer) Watch(ctx context.Context, debounce time.Duration, onBuild func(*Result), onErr func(error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify")
	}
	defer func() {
		_ = w.Close()
	}()

	watched := make(map[string]struct{})
	rebuild := func() {
		res, err := ix.Run(ctx)
		if err != nil {
			onErr(err)
			// the manifest might be broken, keep watching what we have plus the root
			ix.watchDirs(w, watched, []string{ix.opts.Manifest})
			return
		}
		ix.watchDirs(w, watched, append(res.Paths, ix.opts.Manifest))
		if onBuild != nil {
			onBuild(res)
		}
	}

	rebuild()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ix.ignored(ev.Name) {
				continue
			}
			log.Debugf("change detected: %v", ev)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onErr(errors.Wrap(err, "watch"))
		case <-fire:
			fire = nil
			rebuild()
		}
	}
}

// watchDirs adds the directories of all paths to w.
func (ix *Indexer) watchDirs(w *fsnotify.Watcher, watched map[string]struct{}, paths []string) {
	for _, p := range paths {
		dir := filepath.Join(ix.root, filepath.FromSlash(path.Dir(p)))
		if _, ok := watched[dir]; ok {
			continue
		}
		if err := w.Add(dir); err != nil {
			log.Warnf("unable to watch %v: %v", dir, err)
			continue
		}
		watched[dir] = struct{}{}
	}
}

// ignored reports whether a change to name must not trigger a rebuild; the
// build writes its own output below OutDir.
func (ix *Indexer) ignored(name string) bool {
	out := filepath.Join(ix.root, ix.opts.OutDir) + string(filepath.Separator)
	return strings.HasPrefix(name, out) || strings.HasPrefix(filepath.Base(name), ".tmp-")
}

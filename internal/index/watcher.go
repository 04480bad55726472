package index

import (
	"context"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// ChangeCallback is called once per settled burst of changes with the last
// path that changed.
type ChangeCallback func(path string)

// LocalRoots returns the roots that name local directories, with any
// file:// prefix removed. Object storage roots cannot be watched.
func LocalRoots(roots []string) []string {
	var out []string
	for _, r := range roots {
		scheme, rest, ok := strings.Cut(r, "://")
		switch {
		case !ok && filepath.IsAbs(r):
			out = append(out, r)
		case ok && scheme == "file" && filepath.IsAbs(rest):
			out = append(out, rest)
		}
	}
	return out
}

// Watch starts an fsnotify watcher on every local root and calls cb after
// changes settle for debounce, until ctx is cancelled.
//
// New batch directories created at runtime are automatically added to the
// watch list. Roots that are not local directories are skipped. A local root
// that cannot be watched yet is logged and picked up once it appears.
func Watch(ctx context.Context, roots []string, debounce time.Duration, logger *slog.Logger, cb ChangeCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	rs := &rootSet{
		w:       w,
		logger:  logger,
		missing: make(map[string]struct{}),
		parents: make(map[string]struct{}),
	}
	local := LocalRoots(roots)
	for _, root := range local {
		rs.add(root)
	}
	if skipped := len(roots) - len(local); skipped > 0 {
		logger.Info("watcher: skipping non-local roots", slog.Int("count", skipped))
	}

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	schedule := func(path string) {
		pending = path
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			timer, fire = nil, nil
			logger.Debug("watcher: change settled", slog.String("path", pending))
			if cb != nil {
				cb(pending)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			toMissing := rs.leadsToMissing(ev.Name)
			if _, parent := rs.parents[filepath.Dir(ev.Name)]; parent && !toMissing {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if toMissing {
					rs.retry()
				} else if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}
			schedule(ev.Name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// rootSet tracks local roots that could not be watched yet and the existing
// parent directories watched until they appear.
type rootSet struct {
	w       *fsnotify.Watcher
	logger  *slog.Logger
	missing map[string]struct{}
	parents map[string]struct{}
}

// add watches root recursively. When that fails the root is remembered and
// its nearest existing parent is watched instead.
func (rs *rootSet) add(root string) {
	for range 3 {
		err := addDirsRecursive(rs.w, root)
		if err == nil {
			delete(rs.missing, root)
			rs.logger.Info("watcher: started", slog.String("root", root))
			return
		}
		if _, seen := rs.missing[root]; !seen {
			rs.logger.Warn("watcher: root unavailable",
				slog.String("root", root),
				slog.String("error", err.Error()))
		}
		rs.missing[root] = struct{}{}

		dir, ok := nearestDir(filepath.Dir(root))
		if !ok {
			return
		}
		rs.watchParent(dir)
		// The root may have appeared before the parent watch was in place.
		if _, statErr := os.Stat(root); statErr != nil {
			return
		}
	}
}

func (rs *rootSet) watchParent(dir string) {
	if _, ok := rs.parents[dir]; ok || slices.Contains(rs.w.WatchList(), dir) {
		return
	}
	if err := rs.w.Add(dir); err != nil {
		rs.logger.Warn("watcher: watch parent failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	rs.parents[dir] = struct{}{}
}

// retry adds every missing root again and drops the parent watches once
// none are left.
func (rs *rootSet) retry() {
	for _, root := range slices.Sorted(maps.Keys(rs.missing)) {
		rs.add(root)
	}
	if len(rs.missing) > 0 {
		return
	}
	for dir := range rs.parents {
		_ = rs.w.Remove(dir)
		delete(rs.parents, dir)
	}
}

// leadsToMissing reports whether path is a missing root or one of its
// ancestors.
func (rs *rootSet) leadsToMissing(path string) bool {
	for root := range rs.missing {
		if root == path || strings.HasPrefix(root, path+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// nearestDir returns path or its closest ancestor that is an existing
// directory.
func nearestDir(path string) (string, bool) {
	for {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, true
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", false
		}
		path = parent
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// Unreadable subdirectories are skipped; an unreadable root is an error.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

package skills

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Dir is one directory to discover skills in.
type Dir struct {
	Path   string
	Source Source
}

// Discover walks dirs and parses every *.md file found, resolving name
// conflicts by source priority (workspace over local over bundled).
// Unparseable files are logged and skipped; discovery never fails because
// one skill file is broken.
func Discover(dirs []Dir) map[string]*SkillEntry {
	logger := slog.Default().With("component", "skills")
	found := make(map[string]*SkillEntry)

	for _, dir := range dirs {
		info, err := os.Stat(dir.Path)
		if err != nil || !info.IsDir() {
			continue
		}
		err = filepath.WalkDir(dir.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
				return nil
			}
			entry, parseErr := ParseFile(path)
			if parseErr != nil {
				logger.Warn("skipping unparseable skill", "path", path, "error", parseErr)
				return nil
			}
			entry.Source = dir.Source
			existing, ok := found[entry.Name]
			if ok && existing.Source.priority() >= dir.Source.priority() {
				return nil
			}
			found[entry.Name] = entry
			return nil
		})
		if err != nil {
			logger.Warn("skill directory walk failed", "dir", dir.Path, "error", err)
		}
	}
	return found
}

// Watcher re-discovers skills whenever a watched directory changes and
// pushes the fresh set into its target.
type Watcher struct {
	dirs    []Dir
	target  interface{ Replace(map[string]*SkillEntry) }
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

// NewWatcher builds (but does not start) a Watcher pushing into target.
func NewWatcher(dirs []Dir, target interface{ Replace(map[string]*SkillEntry) }) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("skills: create watcher: %w", err)
	}
	return &Watcher{
		dirs:    dirs,
		target:  target,
		watcher: fsw,
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "skills"),
	}, nil
}

// Start registers the directories and begins watching. Directories that do
// not exist yet are skipped.
func (w *Watcher) Start() error {
	for _, dir := range w.dirs {
		if info, err := os.Stat(dir.Path); err != nil || !info.IsDir() {
			continue
		}
		if err := w.watcher.Add(dir.Path); err != nil {
			return fmt.Errorf("skills: watch %s: %w", dir.Path, err)
		}
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("skill change detected, reloading", "path", event.Name, "op", event.Op.String())
			w.target.Replace(Discover(w.dirs))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("skill watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Stop ends the watch.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kamostudio/restack/domain/apptype"
	"github.com/kamostudio/restack/ports"
)

// Registry loads app definitions from a directory of YAML files and serves
// per-app resource type lookups. It can watch the directory and reload on
// change; a failed reload keeps the previous definitions.
type Registry struct {
	mu      sync.RWMutex
	dir     string
	logger  zerolog.Logger
	apps    map[string]*apptype.Definition
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewRegistry creates a registry and performs the initial load.
func NewRegistry(dir string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		dir:    dir,
		logger: logger,
		apps:   make(map[string]*apptype.Definition),
		stopCh: make(chan struct{}),
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load parses every *.yaml/*.yml file in the directory and swaps in the new
// definition set.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read apps dir: %w", err)
	}

	apps := make(map[string]*apptype.Definition)
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		def, err := apptype.Parse(b)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, exists := apps[def.Name]; exists {
			return fmt.Errorf("%s: duplicate app definition %q", path, def.Name)
		}
		apps[def.Name] = def
	}

	r.mu.Lock()
	r.apps = apps
	r.mu.Unlock()

	r.logger.Info().Int("apps", len(apps)).Str("dir", r.dir).Msg("app definitions loaded")
	return nil
}

// Lookup returns the resource type declared by the app, if any.
func (r *Registry) Lookup(appID, typeName string) (*apptype.ResourceType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.apps[appID]
	if !ok {
		return nil, false
	}
	rt, ok := def.Resources[typeName]
	return rt, ok
}

// Apps returns the loaded app names, sorted.
func (r *Registry) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch reloads the definitions whenever a file in the directory changes.
func (r *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isDefinitionFile(filepath.Base(event.Name)) {
					continue
				}
				r.logger.Info().Str("file", event.Name).Str("op", event.Op.String()).Msg("app definition changed, reloading")
				if err := r.Load(); err != nil {
					r.logger.Error().Err(err).Msg("app definition reload failed, keeping previous definitions")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Error().Err(err).Msg("app definition watcher error")
			case <-r.stopCh:
				return
			}
		}
	}()

	return nil
}

// Close stops the watcher, if running.
func (r *Registry) Close() error {
	close(r.stopCh)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func isDefinitionFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Ensure interface compliance.
var _ ports.TypeRegistry = (*Registry)(nil)

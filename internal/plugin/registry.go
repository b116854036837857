package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/metrics"
	"pic-analyzer/internal/tracing"
)

var log = logging.For("registry")

// Category selects one of the registry's lookup tables.
type Category string

// Categories. Every capability is also a category; CategoryAll is the flat
// table of all plugins.
const (
	CategoryAll     Category = "all"
	CategoryFilter  Category = Category(CapabilityFilter)
	CategorySort    Category = Category(CapabilitySort)
	CategoryGroup   Category = Category(CapabilityGroup)
	CategoryGeneral Category = Category(CapabilityGeneral)
)

// Categories lists every category.
var Categories = []Category{CategoryAll, CategoryFilter, CategorySort, CategoryGroup, CategoryGeneral}

// ParseCategory parses a category name. The empty string is CategoryAll.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryAll, nil
	}
	if !slices.Contains(Categories, c) {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// builtinSource is the source recorded for plugins added with Register.
const builtinSource = "builtin"

type entry struct {
	plugin Plugin
	source string // unit path, or builtinSource
	pass   int    // discovery pass that registered it
}

// Registry holds discovered and built-in plugins keyed by name.
//
// Names are unique. When two definitions share a name, both are removed from
// every table and the name is excluded for the registry's lifetime.
type Registry struct {
	// discoverMu serializes Discover calls. mu guards the tables.
	discoverMu sync.Mutex
	mu         sync.RWMutex

	all        map[string]entry
	categories map[Category]map[string]Plugin
	conflicted map[string]struct{}
	loadErrors []*LoadError
	units      []*luaUnit
	pass       int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		all:        make(map[string]entry),
		categories: make(map[Category]map[string]Plugin),
		conflicted: make(map[string]struct{}),
	}
	for _, c := range Categories {
		if c != CategoryAll {
			r.categories[c] = make(map[string]Plugin)
		}
	}
	return r
}

// Register adds a Go plugin under the same conflict rules as discovered
// units. It returns ErrConflict when the name is taken or excluded, and
// ErrInvalidPlugin when the plugin does not implement the operation its
// capability requires.
func (r *Registry) Register(p Plugin) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("%w: plugin has no name", ErrInvalidPlugin)
	}
	if err := checkCapability(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.registerLocked(p, builtinSource, 0)
	r.updateGaugesLocked()
	return err
}

// registerLocked files p into the tables. A name already present from a
// different source, or from the same discovery pass, is a conflict. The same
// unit seen again on a later pass replaces its previous definition.
func (r *Registry) registerLocked(p Plugin, source string, pass int) error {
	name := p.Name()

	if _, bad := r.conflicted[name]; bad {
		log.Warn("Plugin %q from %s rejected: name is excluded after an earlier conflict", name, source)
		return fmt.Errorf("%w: %q", ErrConflict, name)
	}

	if existing, ok := r.all[name]; ok {
		if existing.source != source || existing.pass == pass {
			r.removeLocked(name)
			r.conflicted[name] = struct{}{}
			log.Warn("Plugin name conflict for %q between %s and %s; both excluded", name, existing.source, source)
			return fmt.Errorf("%w: %q", ErrConflict, name)
		}
		r.removeLocked(name)
	}

	r.all[name] = entry{plugin: p, source: source, pass: pass}
	r.categories[Category(p.Capability())][name] = p
	log.Debug("Registered %s plugin %q from %s", p.Capability(), name, source)
	return nil
}

func (r *Registry) removeLocked(name string) {
	delete(r.all, name)
	for _, table := range r.categories {
		delete(table, name)
	}
}

// Discover loads every plugin unit under root. A root that does not exist
// yields no plugins and no error. Failures of individual units are logged and
// recorded (see LoadErrors); only errors reading root itself are returned,
// and plugins registered before the failure are kept.
func (r *Registry) Discover(ctx context.Context, root string) (err error) {
	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	ctx, span := tracing.Start(ctx, tracing.SpanRegistryDiscover, attribute.String(tracing.AttrRoot, root))
	defer func() { tracing.End(span, err) }()

	info, statErr := os.Stat(root)
	if errors.Is(statErr, fs.ErrNotExist) {
		log.Info("Plugin directory %s does not exist; no plugins discovered", root)
		return nil
	}
	if statErr != nil {
		return fmt.Errorf("stat plugin root: %w", statErr)
	}
	if !info.IsDir() {
		return fmt.Errorf("plugin root %s is not a directory", root)
	}

	r.mu.Lock()
	r.pass++
	pass := r.pass
	r.mu.Unlock()

	var loaded, failed int

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, werr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if werr != nil {
			if path == root {
				return werr
			}
			log.Warn("Skipping unreadable path %s: %v", path, werr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isUnitFile(d.Name()) {
			return nil
		}

		plugins, unit, errs := loadUnit(path)
		for _, le := range errs {
			log.Warn("%v", le)
			metrics.PluginLoadErrors.Inc()
		}
		failed += len(errs)

		r.mu.Lock()
		r.loadErrors = append(r.loadErrors, errs...)
		if unit != nil {
			r.units = append(r.units, unit)
		}
		for _, p := range plugins {
			if r.registerLocked(p, path, pass) == nil {
				loaded++
			}
		}
		r.mu.Unlock()
		return nil
	})

	r.mu.Lock()
	r.updateGaugesLocked()
	total := len(r.all)
	r.mu.Unlock()

	span.SetAttributes(
		attribute.Int(tracing.AttrPluginCount, total),
		attribute.Int(tracing.AttrLoadErrors, failed),
	)

	if walkErr != nil {
		return fmt.Errorf("discover plugins in %s: %w", root, walkErr)
	}

	log.Info("Discovered %d plugins in %s (%d registered in total, %d load errors)", loaded, root, total, failed)
	return nil
}

// skipDir reports whether a directory holds build artifacts or caches.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "__pycache__", "build", "dist", "node_modules":
		return true
	}
	return false
}

// isUnitFile reports whether name is a loadable plugin unit rather than a
// test file.
func isUnitFile(name string) bool {
	if !strings.HasSuffix(name, ".lua") || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test.lua") || strings.HasSuffix(name, "_spec.lua") {
		return false
	}
	return true
}

func (r *Registry) updateGaugesLocked() {
	metrics.PluginsLoaded.WithLabelValues(string(CategoryAll)).Set(float64(len(r.all)))
	for c, table := range r.categories {
		metrics.PluginsLoaded.WithLabelValues(string(c)).Set(float64(len(table)))
	}
	metrics.PluginConflicts.Set(float64(len(r.conflicted)))
}

// Lookup returns the plugin named name in category. A miss is a normal
// outcome and reported with ok == false.
func (r *Registry) Lookup(category Category, name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if category == CategoryAll {
		e, ok := r.all[name]
		return e.plugin, ok
	}
	p, ok := r.categories[category][name]
	return p, ok
}

// Get is Lookup over all plugins, returning ErrNotFound on a miss.
func (r *Registry) Get(name string) (Plugin, error) {
	p, ok := r.Lookup(CategoryAll, name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Filter returns the filter plugin named name.
func (r *Registry) Filter(name string) (Filter, error) {
	p, ok := r.Lookup(CategoryFilter, name)
	if !ok {
		return nil, fmt.Errorf("%w: filter %q", ErrNotFound, name)
	}
	return p.(Filter), nil
}

// Sorter returns the sort plugin named name.
func (r *Registry) Sorter(name string) (Sorter, error) {
	p, ok := r.Lookup(CategorySort, name)
	if !ok {
		return nil, fmt.Errorf("%w: sort %q", ErrNotFound, name)
	}
	return p.(Sorter), nil
}

// Grouper returns the group plugin named name.
func (r *Registry) Grouper(name string) (Grouper, error) {
	p, ok := r.Lookup(CategoryGroup, name)
	if !ok {
		return nil, fmt.Errorf("%w: group %q", ErrNotFound, name)
	}
	return p.(Grouper), nil
}

// List returns the plugins in category sorted by name.
func (r *Registry) List(category Category) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Plugin
	if category == CategoryAll {
		out = make([]Plugin, 0, len(r.all))
		for _, e := range r.all {
			out = append(out, e.plugin)
		}
	} else {
		table := r.categories[category]
		out = make([]Plugin, 0, len(table))
		for _, p := range table {
			out = append(out, p)
		}
	}

	slices.SortFunc(out, func(a, b Plugin) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// Names returns the plugin names in category, sorted.
func (r *Registry) Names(category Category) []string {
	plugins := r.List(category)
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// Source returns the unit path a plugin was loaded from, or "builtin".
func (r *Registry) Source(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.all[name]
	return e.source, ok
}

// Conflicts returns the excluded names, sorted.
func (r *Registry) Conflicts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conflicted))
	for name := range r.conflicted {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// LoadErrors returns the unit and definition failures seen so far.
func (r *Registry) LoadErrors() []*LoadError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.loadErrors)
}

// Close releases the interpreters backing discovered plugins. Plugins
// obtained from the registry must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.units {
		u.close()
	}
	r.units = nil
	return nil
}

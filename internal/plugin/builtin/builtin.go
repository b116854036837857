// Package builtin provides the plugins compiled into pic-analyzer. They are
// registered through the same conflict-checked path as Lua units, so a unit
// that reuses one of these names excludes both.
package builtin

import (
	"context"
	"errors"

	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

var log = logging.For("builtin")

// All returns a fresh instance of every built-in plugin.
func All() []plugin.Plugin {
	return []plugin.Plugin{
		NewAscending(),
		NewDescending(),
		NewNormalDistribution(),
		NewDateGrouping(),
		NewFileType(),
		NewFileSize(),
		NewDateRange(),
		NewFileInfo(),
	}
}

// Register adds every built-in plugin to r. Conflicts are logged and
// joined into the returned error; the remaining plugins are still added.
func Register(r *plugin.Registry) error {
	var errs []error
	for _, p := range All() {
		if err := r.Register(p); err != nil {
			log.Warn("Built-in plugin %q not registered: %v", p.Name(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// noRun is embedded by plugins whose Run has nothing to report.
type noRun struct{}

func (noRun) Run(context.Context, string) (mediatypes.Metrics, error) {
	return mediatypes.Metrics{}, nil
}

var statConfig = filesystem.DefaultRetryConfig()

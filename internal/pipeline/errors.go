package pipeline

import "fmt"

// Stage names the pipeline phase a plugin was invoked in.
type Stage string

// Stages.
const (
	StageFilter Stage = "filter"
	StageSort   Stage = "sort"
	StageGroup  Stage = "group"
)

// PluginError reports a plugin that failed while the pipeline was running.
type PluginError struct {
	Plugin string
	Stage  Stage
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s plugin %q failed: %v", e.Stage, e.Plugin, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

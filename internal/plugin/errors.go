package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a plugin name is not registered, or is
	// excluded because of a conflict.
	ErrNotFound = errors.New("plugin not found")

	// ErrConflict is returned by Register when the name is already taken or
	// has been excluded.
	ErrConflict = errors.New("plugin name conflict")

	// ErrInvalidPlugin is returned when a definition lacks a required member.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// LoadError records a plugin unit or definition that could not be loaded.
// Load errors are collected by the registry, never returned from Discover.
type LoadError struct {
	Path string // unit file
	Name string // definition name, if known
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("load %s (%s): %v", e.Path, e.Name, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Command pic-analyzer filters, sorts and groups the images in a folder.
//
// It indexes a folder into a SQLite thumbnail cache, runs analysis plugins
// over each image and applies a rule configuration of filter, sort and
// group steps. Plugins are Lua units discovered under the plugins
// directory, plus a built-in set.
//
// # Commands
//
//	scan <dir>              index a folder, printing images as they are found
//	apply <dir> -r rules    scan, analyze and print the grouped result
//	watch <dir>             rescan whenever the folder changes
//	plugins                 list plugins and their parameters
//	rulesets list|show|delete
//
// # Configuration
//
// Settings are read from $XDG_CONFIG_HOME/pic-analyzer/config.yaml (or
// .toml), PIC_* environment variables and command-line flags, each
// overriding the one before. See [pic-analyzer/internal/startup].
//
// # Shutdown
//
// SIGINT or SIGTERM cancels the running scan at its next checkpoint. Images
// already reported stay cached. The process exits with status 130. A second
// signal exits at once.
//
// # Build Requirements
//
// CGO is required for SQLite. libvips is optional and only used with
// thumbnail_backend: vips.
//
// # Related Packages
//
//   - [pic-analyzer/internal/plugin]: plugin contract and registry
//   - [pic-analyzer/internal/pipeline]: filter, sort and group stages
//   - [pic-analyzer/internal/indexer]: folder scans and the change watcher
//   - [pic-analyzer/internal/database]: thumbnail and analysis cache
//   - [pic-analyzer/internal/rules]: rule file formats
//   - [pic-analyzer/internal/cli]: command tree
package main

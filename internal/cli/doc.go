// Package cli implements the pic-analyzer command line.
//
// Commands:
//   - scan <dir>: index a folder, printing each image as its thumbnail is ready
//   - plugins: list discovered and built-in plugins with their parameters
//   - apply <dir>: scan, analyze and run a rule file through the pipeline,
//     optionally moving the kept images into group folders (--move-to)
//   - watch <dir>: scan, then rescan whenever the folder changes
//   - rulesets list|show|delete <dir>: manage rule sets saved for a folder
//
// Every command shares the configuration loaded by the startup package; the
// persistent flags override the config file and environment.
package cli

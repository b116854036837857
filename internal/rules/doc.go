// Package rules reads and writes rule configurations in YAML, TOML or JSON
// and resolves them against a plugin registry into a pipeline.Config.
//
// A rule file names plugins rather than holding them, so it can outlive the
// plugins it refers to. Resolve reports every stale name at once.
//
//	group:
//	  plugin: Date Grouping
//	  params: {granularity: year}
//	filters:
//	  - plugin: File Type
//	    params: {extension: .png}
//	  - connector: or
//	    plugin: File Size
//	sorts:
//	  - plugin: Descending
//	    metric: size
package rules

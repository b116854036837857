/*
Package pipeline applies a rule configuration to a collection of items:
filters first, then sorts, then grouping.

# Filters

A filter chain is a list of steps. The first step runs on the full input.
Each later step is joined to the running result by a connector:

  - AND runs the plugin on the current result and keeps what it returns.
  - OR runs the plugin on the original input and appends matches that are
    not already present, keeping the existing order.

# Sorts

Sort steps are listed from primary to weakest key. They are applied in
reverse so that the last stable sort, the primary key, dominates.

# Groups

Without a grouper every item lands in a single group named DefaultGroup.
With one, buckets are emitted in descending key order and each bucket keeps
the order of its input.

The package performs no I/O of its own and keeps no state between calls.
Plugin failures are returned as *PluginError and no partial result is
produced.
*/
package pipeline

package tracing

// Span names.
const (
	SpanIndexerScan       = "indexer.scan"
	SpanRegistryDiscover  = "registry.discover"
	SpanPipelineApply     = "pipeline.apply"
	SpanAnalysisAnalyze   = "analysis.analyze"
	SpanDatabaseMigration = "database.migrate"
)

// Attribute keys.
const (
	AttrRoot        = "scan.root"
	AttrJobID       = "scan.job_id"
	AttrScanState   = "scan.state"
	AttrDiscovered  = "scan.discovered"
	AttrPluginCount = "registry.plugins"
	AttrLoadErrors  = "registry.load_errors"
	AttrItemsIn     = "pipeline.items_in"
	AttrItemsOut    = "pipeline.items_out"
	AttrGroups      = "pipeline.groups"
	AttrPlugins     = "analysis.plugins"
)

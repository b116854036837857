// Package mediatypes provides shared type definitions used across the
// pic-analyzer application.
//
// This package exists as a dependency-free foundation that can be imported by
// the indexer, the plugin registry and the rule pipeline without creating
// import cycles. It contains primitive types and pure helpers only.
//
// # Supported Formats
//
// The indexer only considers files whose lowercase extension is present in
// ImageExtensions:
//
//	ext := strings.ToLower(filepath.Ext(filename))
//	if mediatypes.IsSupportedImage(ext) {
//	    // File is a supported image
//	}
//
// # Items
//
// An Item is one discovered asset: its path (the unique key), an optional
// thumbnail and an open-ended set of metrics produced by analysis plugins.
// Metric values are either numeric or textual:
//
//	item := mediatypes.NewItem("/photos/a.jpg", thumb)
//	item = item.WithMetric("brightness", mediatypes.Number(0.42))
//
// # Fingerprints
//
// A Fingerprint is the (size, modification time) pair used to decide whether
// a cached thumbnail is still valid.
package mediatypes

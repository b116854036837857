// Command cachectl inspects and maintains the pic-analyzer cache database.
//
// Usage:
//
//	cachectl <command> [-y]
//
// Commands:
//
//	stats   Show row counts, total thumbnail bytes and every scanned
//	        folder with the time it was last scanned.
//
//	prune   Remove thumbnails and analysis results for files that no
//	        longer exist. Asks for confirmation unless -y is given.
//
//	vacuum  Compact the database file after large prunes.
//
// Environment:
//
//	PIC_DATABASE_PATH - Cache database (default: $XDG_CACHE_HOME/pic-analyzer/cache.db)
//
// Pruning only touches cache rows. Saved rule sets and folders stay until
// they are deleted through pic-analyzer itself.
package main

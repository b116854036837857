package database

import (
	"time"

	"pic-analyzer/internal/mediatypes"
)

// CacheEntry is one row of the thumbnail cache.
type CacheEntry struct {
	Path        string
	Fingerprint mediatypes.Fingerprint
	Thumbnail   []byte
	WorkspaceID int64 // 0 when the path lies outside every workspace
	UpdatedAt   time.Time
}

// Workspace is a folder that has been scanned.
type Workspace struct {
	ID            int64
	Name          string
	Path          string
	CreatedAt     time.Time
	LastScannedAt time.Time
}

// RuleSetInfo describes a saved rule configuration without its body.
type RuleSetInfo struct {
	Name      string
	UpdatedAt time.Time
}

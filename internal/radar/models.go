package radar

import (
	"time"
)

// Frame is one radar composite published by the remote catalog.
type Frame struct {
	Time time.Time `json:"time"` // always UTC
	URL  string    `json:"url"`
}

// CachedFrame describes a radar image currently held in the local cache.
type CachedFrame struct {
	Name       string    `json:"name"`
	Sequence   uint64    `json:"sequence"`
	SizeBytes  int64     `json:"sizeBytes"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Query bounds a catalog lookup. Zero times are left to the remote service's
// defaults.
type Query struct {
	StoredQueryID string
	Start         time.Time
	End           time.Time
}

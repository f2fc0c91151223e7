package radar

import (
	"context"
	"time"
)

// URLBuilder produces the download URL of a radar composite. A nil at means
// the current time.
type URLBuilder interface {
	BuildURL(key string, at *time.Time) (string, error)
}

// Fetcher retrieves url and writes the body to destPath.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// Catalog lists composites available on the remote service.
type Catalog interface {
	AvailableMaps(ctx context.Context, q Query) ([]Frame, error)
}

// Store is the contract the bounded file cache satisfies.
type Store interface {
	FetchOne(ctx context.Context, urls URLBuilder, fetcher Fetcher) (string, error)
	Entries() ([]string, error)
	Latest() (string, error)
	Path(name string) (string, error)
	Capacity() int
	Extension() string
}

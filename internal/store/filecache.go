package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/i474232898/radar-data-cache/internal/common"
	"github.com/i474232898/radar-data-cache/internal/logging"
	"github.com/i474232898/radar-data-cache/internal/radar"
)

const (
	// DefaultStoredCount is the retention capacity used when none is given.
	DefaultStoredCount = 6
	// DefaultExtension is appended to every sequence number.
	DefaultExtension = ".tif"
)

var (
	// ErrStorage is returned when the cache directory cannot be created,
	// listed, locked, or cleaned.
	ErrStorage = errors.New("radar cache storage error")

	// ErrFetch is returned when a frame could not be retrieved into the cache.
	ErrFetch = errors.New("radar frame fetch failed")

	// ErrNotFound is returned when the cache holds no matching frame.
	ErrNotFound = errors.New("no radar frame cached")

	// ErrInvalidName is returned for entry names that are not plain file names.
	ErrInvalidName = errors.New("invalid radar frame name")
)

// FileCache keeps the newest N fetched radar frames in a flat directory.
// Files are named by a process-local sequence number, so the newest frame is
// always the one with the highest number.
type FileCache struct {
	mu sync.Mutex

	dir      string
	key      string
	maxCount int
	ext      string
	counter  uint64

	dirLock *flock.Flock
	logger  *slog.Logger
}

// Option customizes a FileCache.
type Option func(*FileCache)

// WithExtension overrides the file extension (".tif" by default).
func WithExtension(ext string) Option {
	return func(c *FileCache) {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.ext = ext
	}
}

// WithLogger sets the logger used for store and prune events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *FileCache) {
		c.logger = logging.NewComponentLogger(logger, "store")
	}
}

// NewFileCache creates dir if needed, takes the inter-process lock on it and
// removes every entry it contains, so a cache always starts empty.
// If maxCount is <= 0, DefaultStoredCount is used.
func NewFileCache(dir, key string, maxCount int, opts ...Option) (*FileCache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: empty cache directory", ErrStorage)
	}
	if maxCount <= 0 {
		maxCount = DefaultStoredCount
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrStorage, dir, err)
	}

	c := &FileCache{
		dir:      abs,
		key:      key,
		maxCount: maxCount,
		ext:      DefaultExtension,
		logger:   logging.NewComponentLogger(nil, "store"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, c.dir, err)
	}

	// The lock lives beside the directory so clearing it never removes the lock.
	c.dirLock = flock.New(lockPath(c.dir))
	ok, err := c.dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrStorage, c.dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is in use by another cache", ErrStorage, c.dir)
	}

	if err := c.removeAllLocked(); err != nil {
		common.LogErr(c.logger, c.dirLock.Unlock(), "failed to release cache directory lock")
		return nil, err
	}

	c.logger.Info("radar cache initialized",
		logging.String("dir", c.dir),
		logging.Int("stored_count", c.maxCount),
	)
	return c, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// Capacity returns the maximum number of frames kept on disk.
func (c *FileCache) Capacity() int { return c.maxCount }

// Extension returns the suffix shared by all cache file names.
func (c *FileCache) Extension() string { return c.ext }

// Close releases the directory lock. Cached files are left in place.
func (c *FileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dirLock == nil {
		return nil
	}
	if err := c.dirLock.Unlock(); err != nil {
		return fmt.Errorf("%w: unlock %s: %w", ErrStorage, c.dir, err)
	}
	return nil
}

// NextFilename advances the sequence counter and returns the matching name.
func (c *FileCache) NextFilename() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextFilenameLocked()
}

// Entries returns the cached file names, newest first.
func (c *FileCache) Entries() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entriesLocked()
}

// Latest returns the name of the newest cached frame.
func (c *FileCache) Latest() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names, err := c.entriesLocked()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNotFound
	}
	return names[0], nil
}

// Path resolves a cached entry name to its path on disk.
func (c *FileCache) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(filepath.Join(c.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("%w: stat %s: %w", ErrStorage, name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return filepath.Join(c.dir, name), nil
}

// Prune deletes every entry beyond the retention capacity and returns the
// removed names.
func (c *FileCache) Prune() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked()
}

// FetchOne downloads the current radar frame into the next sequence file and
// prunes the cache back to capacity, all under a single lock acquisition.
//
// On a failed fetch nothing is rolled back: the counter stays advanced and a
// partial file may remain until a later prune removes it.
func (c *FileCache) FetchOne(ctx context.Context, urls radar.URLBuilder, fetcher radar.Fetcher) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := c.nextFilenameLocked()
	dest := filepath.Join(c.dir, name)

	u, err := urls.BuildURL(c.key, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build url for %s: %w", ErrFetch, name, err)
	}
	if err := fetcher.Fetch(ctx, u, dest); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, name, err)
	}

	attrs := []logging.Attr{logging.String("name", name)}
	if info, err := os.Stat(dest); err == nil {
		attrs = append(attrs, logging.String("size", common.HumanBytes(info.Size())))
	}
	c.logger.Info("stored radar frame", logging.Args(attrs...)...)

	if _, err := c.pruneLocked(); err != nil {
		return name, err
	}
	return name, nil
}

func (c *FileCache) nextFilenameLocked() string {
	c.counter++
	return strconv.FormatUint(c.counter, 10) + c.ext
}

func (c *FileCache) entriesLocked() ([]string, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrStorage, c.dir, err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sortNewestFirst(names, c.ext)
	return names, nil
}

func (c *FileCache) pruneLocked() ([]string, error) {
	names, err := c.entriesLocked()
	if err != nil {
		return nil, err
	}
	if len(names) <= c.maxCount {
		return nil, nil
	}

	var removed []string
	for _, name := range names[c.maxCount:] {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("%w: remove %s: %w", ErrStorage, name, err)
		}
		removed = append(removed, name)
	}
	c.logger.Debug("pruned radar frames",
		logging.Int("removed", len(removed)),
		logging.Int("kept", c.maxCount),
	)
	return removed, nil
}

func lockPath(dir string) string {
	return filepath.Join(filepath.Dir(dir), filepath.Base(dir)+".lock")
}

func (c *FileCache) removeAllLocked() error {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("%w: list %s: %w", ErrStorage, c.dir, err)
	}
	for _, entry := range dirEntries {
		if err := os.RemoveAll(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("%w: remove %s: %w", ErrStorage, entry.Name(), err)
		}
	}
	return nil
}

// sortNewestFirst orders sequence-named files by descending number. Other
// names go last, in descending lexical order.
func sortNewestFirst(names []string, ext string) {
	sort.SliceStable(names, func(i, j int) bool {
		si, okI := radar.ParseSequence(names[i], ext)
		sj, okJ := radar.ParseSequence(names[j], ext)
		switch {
		case okI && okJ:
			return si > sj
		case okI != okJ:
			return okI
		default:
			return names[i] > names[j]
		}
	})
}

package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/radar-data-cache/internal/logging"
)

// ErrNoCatalog is returned by Available when no catalog is configured.
var ErrNoCatalog = errors.New("radar catalog not configured")

// Service orchestrates the radar image cache and its remote collaborators.
type Service struct {
	store   Store
	urls    URLBuilder
	fetcher Fetcher
	catalog Catalog
	logger  *slog.Logger

	fetchTimeout time.Duration
	fetches      singleflight.Group
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithFetchTimeout bounds each shared download independently of the callers
// waiting on it.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.fetchTimeout = d
	}
}

// NewService creates a new Service. catalog may be nil.
func NewService(store Store, urls URLBuilder, fetcher Fetcher, catalog Catalog, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		urls:    urls,
		fetcher: fetcher,
		catalog: catalog,
		logger:  logging.NewComponentLogger(logger, "radar"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchLatest downloads the current composite into the cache and returns the
// new entry name. Callers that arrive while a fetch is in flight share its
// result instead of starting another download.
//
// The shared download does not inherit the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx is done, while the
// download itself runs to completion or until the fetch timeout.
func (s *Service) FetchLatest(ctx context.Context) (string, error) {
	ch := s.fetches.DoChan("latest", func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if s.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, s.fetchTimeout)
			defer cancel()
		}
		return s.store.FetchOne(fetchCtx, s.urls, s.fetcher)
	})

	select {
	case <-ctx.Done():
		s.logger.Debug("stopped waiting for radar fetch", logging.Error(ctx.Err()))
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("radar fetch failed", logging.Error(res.Err))
			return "", res.Err
		}
		name := res.Val.(string)
		if res.Shared {
			s.logger.Debug("joined in-flight radar fetch", logging.String("name", name))
		}
		return name, nil
	}
}

// Frames lists the cached frames, newest first.
func (s *Service) Frames() ([]CachedFrame, error) {
	names, err := s.store.Entries()
	if err != nil {
		return nil, err
	}

	frames := make([]CachedFrame, 0, len(names))
	for _, name := range names {
		path, err := s.store.Path(name)
		if err != nil {
			// Pruned between listing and lookup.
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		seq, _ := ParseSequence(name, s.store.Extension())
		frames = append(frames, CachedFrame{
			Name:       name,
			Sequence:   seq,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	return frames, nil
}

// Capacity returns the number of frames the cache retains.
func (s *Service) Capacity() int {
	return s.store.Capacity()
}

// LatestPath returns the on-disk path of the newest cached frame.
func (s *Service) LatestPath() (string, error) {
	name, err := s.store.Latest()
	if err != nil {
		return "", err
	}
	return s.store.Path(name)
}

// FramePath delegates to the underlying store.
func (s *Service) FramePath(name string) (string, error) {
	return s.store.Path(name)
}

// Available lists the composites published by the remote catalog.
func (s *Service) Available(ctx context.Context, q Query) ([]Frame, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	frames, err := s.catalog.AvailableMaps(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list available radar maps: %w", err)
	}
	return frames, nil
}

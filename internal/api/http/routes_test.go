package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/radar-data-cache/internal/radar"
	"github.com/i474232898/radar-data-cache/internal/scheduler"
	"github.com/i474232898/radar-data-cache/internal/store"
)

type stubStats scheduler.Stats

func (s stubStats) Stats() scheduler.Stats { return scheduler.Stats(s) }

type stubURLs struct{}

func (stubURLs) BuildURL(key string, _ *time.Time) (string, error) {
	return "http://radar.test/" + key, nil
}

type fetchFunc func(ctx context.Context, url, dest string) error

func (f fetchFunc) Fetch(ctx context.Context, url, dest string) error { return f(ctx, url, dest) }

type catalogFunc func(ctx context.Context, q radar.Query) ([]radar.Frame, error)

func (f catalogFunc) AvailableMaps(ctx context.Context, q radar.Query) ([]radar.Frame, error) {
	return f(ctx, q)
}

func writeFrame(_ context.Context, _, dest string) error {
	return os.WriteFile(dest, []byte("II*\x00frame"), 0o644)
}

func newTestApp(t *testing.T, fetcher radar.Fetcher, catalog radar.Catalog) *fiber.App {
	t.Helper()
	cache, err := store.NewFileCache(filepath.Join(t.TempDir(), "radar"), "secret", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	svc := radar.NewService(cache, stubURLs{}, fetcher, catalog, nil)
	app := fiber.New()
	RegisterHealth(app, svc, stubStats{Runs: 2, Failures: 1, LastFrame: "2.tif"})
	RegisterRoutes(app, svc)
	return app
}

func do(t *testing.T, app *fiber.App, method, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestFetchAndServeFrames(t *testing.T) {
	app := newTestApp(t, fetchFunc(writeFrame), nil)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/radar/frames/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, app, http.MethodPost, "/api/v1/radar/fetch")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "1.tif", created.Name)

	resp, body = do(t, app, http.MethodGet, "/api/v1/radar/frames/1.tif")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "II*\x00frame", string(body))

	resp, body = do(t, app, http.MethodGet, "/api/v1/radar/frames/latest")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "II*\x00frame", string(body))

	resp, _ = do(t, app, http.MethodGet, "/api/v1/radar/frames/9.tif")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, fetchFunc(writeFrame), nil)

	resp, body := do(t, app, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status    string          `json:"status"`
		Capacity  int             `json:"capacity"`
		Scheduler scheduler.Stats `json:"scheduler"`
	}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Capacity)
	assert.Equal(t, int64(2), health.Scheduler.Runs)
	assert.Equal(t, int64(1), health.Scheduler.Failures)
	assert.Equal(t, "2.tif", health.Scheduler.LastFrame)
}

func TestFrameNameValidation(t *testing.T) {
	app := newTestApp(t, fetchFunc(writeFrame), nil)

	for _, target := range []string{
		"/api/v1/radar/frames/..%2Fradar.lock",
		"/api/v1/radar/frames/a%2Fb.tif",
	} {
		resp, _ := do(t, app, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
	}
}

func TestListFrames(t *testing.T) {
	app := newTestApp(t, fetchFunc(writeFrame), nil)
	for i := 0; i < 5; i++ {
		resp, _ := do(t, app, http.MethodPost, "/api/v1/radar/fetch")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := do(t, app, http.MethodGet, "/api/v1/radar/frames")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Capacity int                 `json:"capacity"`
		Frames   []radar.CachedFrame `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Equal(t, 3, listing.Capacity)
	require.Len(t, listing.Frames, 3)
	assert.Equal(t, "5.tif", listing.Frames[0].Name)
	assert.Equal(t, uint64(5), listing.Frames[0].Sequence)
	assert.Equal(t, "3.tif", listing.Frames[2].Name)
}

func TestFetchFailureIsBadGateway(t *testing.T) {
	app := newTestApp(t, fetchFunc(func(context.Context, string, string) error {
		return errors.New("connection refused")
	}), nil)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/radar/fetch")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAvailableValidation(t *testing.T) {
	var got radar.Query
	frames := []radar.Frame{{Time: time.Date(2017, 10, 17, 7, 5, 0, 0, time.UTC), URL: "http://wms.test/a"}}
	app := newTestApp(t, fetchFunc(writeFrame), catalogFunc(func(_ context.Context, q radar.Query) ([]radar.Frame, error) {
		got = q
		return frames, nil
	}))

	// to before from should return 400.
	resp, _ := do(t, app, http.MethodGet, "/api/v1/radar/available?from=2017-10-17T08:00:00Z&to=2017-10-17T07:00:00Z")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/radar/available?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, app, http.MethodGet, "/api/v1/radar/available?from=1508223600&to=2017-10-17T08:00:00Z")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, time.Date(2017, 10, 17, 7, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2017, 10, 17, 8, 0, 0, 0, time.UTC), got.End)

	var listing struct {
		Frames []radar.Frame `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Equal(t, frames, listing.Frames)
}

func TestAvailableWithoutCatalog(t *testing.T) {
	app := newTestApp(t, fetchFunc(writeFrame), nil)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/radar/available")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAvailableOmitsMissingBounds(t *testing.T) {
	app := newTestApp(t, fetchFunc(writeFrame), catalogFunc(func(context.Context, radar.Query) ([]radar.Frame, error) {
		return []radar.Frame{}, nil
	}))

	resp, body := do(t, app, http.MethodGet, "/api/v1/radar/available")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Contains(t, payload, "frames")
	assert.NotContains(t, payload, "from")
	assert.NotContains(t, payload, "to")

	resp, body = do(t, app, http.MethodGet, "/api/v1/radar/available?from=2017-10-17T07:00:00Z")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload = nil
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Contains(t, payload, "from")
	assert.NotContains(t, payload, "to")
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/sony/gobreaker"

	"github.com/i474232898/radar-data-cache/internal/common"
	"github.com/i474232898/radar-data-cache/internal/logging"
)

// errServiceException is returned when the map server answers with an OGC
// exception document instead of an image.
var errServiceException = errors.New("service exception")

// HTTPFetcher implements radar.Fetcher over HTTP.
type HTTPFetcher struct {
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewHTTPFetcher(client *http.Client, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("fmi-wms"),
		logger:  logging.NewComponentLogger(logger, "fetcher"),
	}
}

// Fetch downloads rawURL into destPath. The destination is only created once
// the server has answered with an image; a failure while streaming the body
// leaves the partial file in place.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, destPath string) error {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return err
	}
	defer func() {
		common.LogErr(f.logger, resp.Body.Close(), "failed to close response body")
	}()

	if ct := resp.Header.Get("Content-Type"); common.HasAny(ct, "xml", "html") {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", errServiceException, ct, snippet)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		common.LogErr(f.logger, out.Close(), "failed to close partial file", "path", destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", destPath, err)
	}

	f.logger.Debug("downloaded radar frame",
		logging.String("path", destPath),
		logging.String("size", common.HumanBytes(written)),
	)
	return nil
}

package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/radar-data-cache/internal/common"
	"github.com/i474232898/radar-data-cache/internal/logging"
	"github.com/i474232898/radar-data-cache/internal/radar"
)

const (
	DefaultWFSURL        = "http://data.fmi.fi/fmi-apikey/{key}/wfs"
	DefaultStoredQueryID = "fmi::radar::composite::rr"
)

// FMICatalog lists published radar composites through the FMI WFS stored
// queries.
type FMICatalog struct {
	apiKey        string
	baseURL       string
	storedQueryID string
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
	logger        *slog.Logger
}

func NewFMICatalog(client *http.Client, apiKey, baseURL, storedQueryID string, logger *slog.Logger) *FMICatalog {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultWFSURL
	}
	if strings.TrimSpace(storedQueryID) == "" {
		storedQueryID = DefaultStoredQueryID
	}
	return &FMICatalog{
		apiKey:        apiKey,
		baseURL:       baseURL,
		storedQueryID: storedQueryID,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("fmi-wfs"),
		logger:  logging.NewComponentLogger(logger, "catalog"),
	}
}

// AvailableMaps returns the composites matching q, oldest first.
func (c *FMICatalog) AvailableMaps(ctx context.Context, q radar.Query) ([]radar.Frame, error) {
	if c.apiKey == "" {
		return nil, errMissingKey
	}

	storedQuery := q.StoredQueryID
	if storedQuery == "" {
		storedQuery = c.storedQueryID
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("service", "WFS")
		values.Set("version", "2.0.0")
		values.Set("request", "GetFeature")
		values.Set("storedquery_id", storedQuery)
		if !q.Start.IsZero() {
			values.Set("starttime", q.Start.UTC().Format(time.RFC3339))
		}
		if !q.End.IsZero() {
			values.Set("endtime", q.End.UTC().Format(time.RFC3339))
		}

		u := fmt.Sprintf("%s?%s", withKey(c.baseURL, c.apiKey), values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		common.LogErr(c.logger, resp.Body.Close(), "failed to close response body")
	}()

	var payload featureCollection
	if err := xml.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode wfs response: %w", err)
	}

	frames, err := payload.frames()
	if err != nil {
		return nil, err
	}
	c.logger.Debug("listed radar composites",
		logging.String("stored_query", storedQuery),
		logging.Int("count", len(frames)),
	)
	return frames, nil
}

// featureCollection mirrors the parts of a wfs:FeatureCollection we read:
// wfs:member/omso:GridSeriesObservation with its result time and file link.
type featureCollection struct {
	XMLName xml.Name `xml:"FeatureCollection"`
	Members []struct {
		Observation struct {
			ResultTime    string `xml:"resultTime>TimeInstant>timePosition"`
			FileReference string `xml:"result>RectifiedGridCoverage>rangeSet>File>fileReference"`
		} `xml:"GridSeriesObservation"`
	} `xml:"member"`
}

func (fc featureCollection) frames() ([]radar.Frame, error) {
	byTime := make(map[time.Time]string, len(fc.Members))
	for _, m := range fc.Members {
		obs := m.Observation
		raw := strings.TrimSpace(obs.ResultTime)
		ref := strings.TrimSpace(obs.FileReference)
		if raw == "" || ref == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse result time %q: %w", raw, err)
		}
		// Later members win.
		byTime[ts.UTC()] = ref
	}

	frames := make([]radar.Frame, 0, len(byTime))
	for ts, ref := range byTime {
		frames = append(frames, radar.Frame{Time: ts, URL: ref})
	}
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Time.Before(frames[j].Time)
	})
	return frames, nil
}

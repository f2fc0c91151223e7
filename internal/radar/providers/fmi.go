package providers

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/radar-data-cache/internal/radar"
)

const (
	DefaultWMSURL        = "http://wms.fmi.fi/fmi-apikey/{key}/geoserver/Radar/ows"
	DefaultVariable      = "rr"
	DefaultWidth         = 3400
	DefaultHeight        = 5380
	defaultBoundingBox   = "-118331.366,6335621.167,875567.732,7907751.537"
	defaultSpatialRefSys = "EPSG:3067"
)

var errMissingKey = errors.New("fmi api key is not configured")

// FMIURLBuilder builds WMS GetMap URLs for the FMI Finnish radar composite.
type FMIURLBuilder struct {
	// BaseURL may contain a "{key}" placeholder for the API key.
	BaseURL  string
	Variable string
	Width    int
	Height   int

	now func() time.Time
}

// NewFMIURLBuilder returns a builder with the service defaults applied to any
// zero field.
func NewFMIURLBuilder(baseURL, variable string, width, height int) *FMIURLBuilder {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultWMSURL
	}
	if strings.TrimSpace(variable) == "" {
		variable = DefaultVariable
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &FMIURLBuilder{
		BaseURL:  baseURL,
		Variable: variable,
		Width:    width,
		Height:   height,
		now:      time.Now,
	}
}

// BuildURL returns the GeoTIFF download URL for the frame at (or, when at is
// nil, the frame current at build time).
func (b *FMIURLBuilder) BuildURL(key string, at *time.Time) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errMissingKey
	}

	ts := b.now()
	if at != nil {
		ts = *at
	}

	values := url.Values{}
	values.Set("service", "WMS")
	values.Set("version", "1.3.0")
	values.Set("request", "GetMap")
	values.Set("layers", fmt.Sprintf("Radar:suomi_%s_eureffin", b.Variable))
	values.Set("styles", "raster")
	values.Set("bbox", defaultBoundingBox)
	values.Set("srs", defaultSpatialRefSys)
	values.Set("format", "image/geotiff")
	values.Set("width", strconv.Itoa(b.Width))
	values.Set("height", strconv.Itoa(b.Height))
	values.Set("time", radar.FormatTimestamp(ts))

	return fmt.Sprintf("%s?%s", withKey(b.BaseURL, key), values.Encode()), nil
}

func withKey(base, key string) string {
	return strings.ReplaceAll(base, "{key}", url.PathEscape(key))
}

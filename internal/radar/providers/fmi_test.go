package providers

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFMIURLBuilderBuildURL(t *testing.T) {
	b := NewFMIURLBuilder("", "", 0, 0)
	at := time.Date(2017, 10, 17, 7, 7, 42, 0, time.UTC)

	raw, err := b.BuildURL("abc-123", &at)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "wms.fmi.fi", u.Host)
	assert.Equal(t, "/fmi-apikey/abc-123/geoserver/Radar/ows", u.Path)

	q := u.Query()
	assert.Equal(t, "WMS", q.Get("service"))
	assert.Equal(t, "GetMap", q.Get("request"))
	assert.Equal(t, "Radar:suomi_rr_eureffin", q.Get("layers"))
	assert.Equal(t, "image/geotiff", q.Get("format"))
	assert.Equal(t, "EPSG:3067", q.Get("srs"))
	assert.Equal(t, "3400", q.Get("width"))
	assert.Equal(t, "5380", q.Get("height"))
	assert.Equal(t, "2017-10-17T07:05:00Z", q.Get("time"))
}

func TestFMIURLBuilderUsesCurrentTime(t *testing.T) {
	b := NewFMIURLBuilder("http://maps.test/{key}/ows", "dbz", 100, 200)
	b.now = func() time.Time {
		return time.Date(2024, 3, 1, 14, 59, 59, 0, time.FixedZone("EET", 2*60*60))
	}

	raw, err := b.BuildURL("k", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://maps.test/k/ows?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:55:00Z", u.Query().Get("time"))
	assert.Equal(t, "Radar:suomi_dbz_eureffin", u.Query().Get("layers"))
	assert.Equal(t, "100", u.Query().Get("width"))
}

func TestFMIURLBuilderEscapesKey(t *testing.T) {
	b := NewFMIURLBuilder("", "", 0, 0)
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	raw, err := b.BuildURL("a/b c", &at)
	require.NoError(t, err)
	assert.Contains(t, raw, "/fmi-apikey/a%2Fb%20c/")
}

func TestFMIURLBuilderRequiresKey(t *testing.T) {
	b := NewFMIURLBuilder("", "", 0, 0)

	_, err := b.BuildURL("  ", nil)
	assert.ErrorIs(t, err, errMissingKey)
}

package radar

import "time"

// FrameInterval is the cadence at which the radar composite is produced.
const FrameInterval = 5 * time.Minute

const timestampLayout = "2006-01-02T15:04:00Z"

// NormalizeTime floors t to the previous frame boundary in UTC.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(FrameInterval)
}

// FormatTimestamp renders t as the service's time parameter, e.g.
// "2017-10-17T07:05:00Z".
func FormatTimestamp(t time.Time) string {
	return NormalizeTime(t).Format(timestampLayout)
}

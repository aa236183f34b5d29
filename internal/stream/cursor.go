package stream

import (
	"strconv"
	"strings"
	"time"
)

// ParseSince accepts either epoch milliseconds or an RFC3339 timestamp, the
// two cursor forms kiosks send via ?since= and Last-Event-ID.
func ParseSince(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}

// ToMillis renders a cursor the way it travels on the wire.
func ToMillis(ts time.Time) int64 {
	return ts.UnixMilli()
}

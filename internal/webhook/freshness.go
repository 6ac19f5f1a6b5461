package webhook

import (
	"strconv"
	"time"
)

// millisecondEpochFloor distinguishes unix-second timestamps from
// unix-millisecond ones: any value at or above this is taken as
// milliseconds. (1e12 seconds is the year 33658.)
const millisecondEpochFloor = 1_000_000_000_000

// Fresh reports whether timestamp (a unix seconds-or-milliseconds string) is
// within maxAge of now. A missing or unparseable timestamp is never fresh.
//
// Only staleness is checked; a timestamp far in the future passes. This is a
// known gap accepted to match the producer's documented check.
func Fresh(timestamp string, maxAge time.Duration, now time.Time) bool {
	if timestamp == "" {
		return false
	}
	v, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	var requestTime time.Time
	if v >= millisecondEpochFloor {
		requestTime = time.UnixMilli(v)
	} else {
		requestTime = time.Unix(v, 0)
	}

	return now.Sub(requestTime) <= maxAge
}

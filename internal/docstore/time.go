package docstore

import (
	"time"

	"github.com/emberdb/ember/internal/value"
)

func newDateTime(sec, nsec int64, offsetSeconds int) value.DateTime {
	loc := time.FixedZone("", offsetSeconds)
	return value.DateTime{
		Instant:       time.Unix(sec, nsec).In(loc),
		OffsetSeconds: offsetSeconds,
	}
}

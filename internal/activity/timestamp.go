package activity

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// EpochOffset is the fixed number of seconds between the Unix epoch and the
// FIT epoch (1989-12-31T00:00:00Z). On-disk FIT timestamps are unsigned
// 32-bit seconds past that epoch.
const EpochOffset int64 = 631065600

// Epoch returns the FIT epoch as a wall-clock time.
func Epoch() time.Time {
	return time.Unix(EpochOffset, 0).UTC()
}

// ToFileTime converts a Unix timestamp to the file format's native
// representation, clamping to the representable uint32 range.
func ToFileTime(unix int64) uint32 {
	v := unix - EpochOffset
	if v < 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// fileTime validates one wall-clock timestamp before it is handed to the
// encoder. Every timestamp written goes through here individually; invalid
// inputs degrade to "now" with a warning, never an error. The clamp itself
// is ToFileTime, so on-disk and wall-clock conversions cannot drift apart.
func fileTime(t time.Time, now func() time.Time, logger *zap.Logger) time.Time {
	if t.IsZero() {
		logger.Warn("missing timestamp, substituting current time")
		t = now()
	}
	clamped := time.Unix(EpochOffset+int64(ToFileTime(t.Unix())), 0).UTC()
	if !clamped.Equal(t.UTC().Truncate(time.Second)) {
		logger.Warn("timestamp outside representable range, clamped",
			zap.Time("timestamp", t))
	}
	return clamped
}

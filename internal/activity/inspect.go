package activity

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tormoder/fit"
)

// FileSummary holds the session-level fields read back from an activity
// file. Zero values mean the field was absent or invalid on disk.
type FileSummary struct {
	FilePath        string
	Sport           string
	SubSport        string
	StartTime       time.Time
	EndTime         time.Time
	ElapsedSeconds  float64
	DistanceMeters  float64
	Calories        int
	AvgSpeedMps     float64
	MaxSpeedMps     float64
	AvgPowerWatts   float64
	MaxPowerWatts   float64
	NormalizedPower float64
	AvgHeartRate    int
	MaxHeartRate    int
	AvgCadence      int
	RecordCount     int
	HasSession      bool
}

// ReadSummary decodes a written activity file and extracts its session
// summary. Files without a session message (degraded tiers) decode to a
// summary with HasSession false rather than an error.
func ReadSummary(path string) (*FileSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}

	summary := &FileSummary{FilePath: path}

	activity, err := decoded.Activity()
	if err != nil {
		return summary, nil
	}
	summary.RecordCount = len(activity.Records)
	if len(activity.Sessions) == 0 {
		return summary, nil
	}

	session := activity.Sessions[0]
	summary.HasSession = true
	summary.Sport = fmt.Sprint(session.Sport)
	summary.SubSport = fmt.Sprint(session.SubSport)
	summary.StartTime = validTimeOrZero(session.StartTime)
	summary.EndTime = validTimeOrZero(session.Timestamp)
	summary.ElapsedSeconds = safePositive(session.GetTotalTimerTimeScaled())
	summary.DistanceMeters = safePositive(session.GetTotalDistanceScaled())
	summary.Calories = int(validUint16(session.TotalCalories))
	summary.AvgSpeedMps = safePositive(session.GetAvgSpeedScaled())
	summary.MaxSpeedMps = safePositive(session.GetMaxSpeedScaled())
	summary.AvgPowerWatts = float64(validUint16(session.AvgPower))
	summary.MaxPowerWatts = float64(validUint16(session.MaxPower))
	summary.NormalizedPower = float64(validUint16(session.NormalizedPower))
	summary.AvgHeartRate = int(validUint8(session.AvgHeartRate))
	summary.MaxHeartRate = int(validUint8(session.MaxHeartRate))
	summary.AvgCadence = int(validUint8(session.AvgCadence))
	return summary, nil
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}

func safePositive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

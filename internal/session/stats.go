package session

import (
	"math"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

// npWindowSamples is the rolling window used for normalized power. The
// window is counted in samples, not seconds; at the nominal 1 Hz notification
// rate these coincide.
const npWindowSamples = 30

// defaultFTPWatts is assumed when no athlete profile supplies one.
const defaultFTPWatts = 200.0

// AthleteProfile carries the read-only athlete inputs consumed at finalize
// and encode time. Zero values mean "unknown".
type AthleteProfile struct {
	WeightKG  float64
	Age       int
	Gender    string
	FTPWatts  float64
	RestingHR int
	MaxHR     int
}

// SummaryStats is the point-in-time or finalized summary of one workout.
// Pointer fields are finalize-only derived metrics; nil means "absent",
// never zero.
type SummaryStats struct {
	DeviceClass telemetry.DeviceClass
	Duration    float64 // seconds
	SampleCount int

	AvgPower     float64
	MaxPower     float64
	AvgHeartRate float64
	MaxHeartRate float64
	AvgCadence   float64 // stroke rate for rowers
	MaxCadence   float64
	AvgSpeed     float64 // km/h, cycle only
	MaxSpeed     float64

	// Device-reported cumulative counters, stored as last seen. These are
	// not re-derived and may go backwards on misbehaving hardware; see
	// CounterAnomalies.
	TotalDistance float64
	TotalEnergy   float64
	StrokeCount   float64

	CounterAnomalies int

	NormalizedPower *float64
	IntensityFactor *float64
	TrainingStress  *float64
	EstimatedVO2Max *float64
}

// running accumulates (sum, count, max) for one instantaneous metric.
// Samples without the metric leave it untouched.
type running struct {
	sum   float64
	count int
	max   float64
}

func (r *running) observe(v float64) {
	if r.count == 0 || v > r.max {
		r.max = v
	}
	r.sum += v
	r.count++
}

func (r *running) avg() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

type runningStats struct {
	class telemetry.DeviceClass

	power   running
	hr      running
	cadence running
	speed   running

	powerSeries []float64

	distance      float64
	energy        float64
	strokes       float64
	anomalies     int
	sampleCount   int
	lastMonotonic float64
}

func newRunningStats(class telemetry.DeviceClass) *runningStats {
	return &runningStats{class: class, powerSeries: make([]float64, 0, 4096)}
}

// cadenceMetric is the per-class source for the cadence statistic.
func (rs *runningStats) cadenceMetric() telemetry.Metric {
	if rs.class == telemetry.DeviceRow {
		return telemetry.MetricStrokeRate
	}
	return telemetry.MetricInstantaneousCadence
}

// observe folds one sample into the running statistics. Returns the number
// of counter anomalies detected in this sample (cumulative counters moving
// backwards); the values are stored as reported either way.
func (rs *runningStats) observe(s telemetry.Sample) int {
	rs.sampleCount++
	rs.lastMonotonic = s.MonotonicTime

	anomalies := 0
	if v, ok := s.Get(telemetry.MetricInstantaneousPower); ok {
		rs.power.observe(v)
		rs.powerSeries = append(rs.powerSeries, v)
	}
	if v, ok := s.Get(telemetry.MetricHeartRate); ok {
		rs.hr.observe(v)
	}
	if v, ok := s.Get(rs.cadenceMetric()); ok {
		rs.cadence.observe(v)
	}
	if rs.class == telemetry.DeviceCycle {
		if v, ok := s.Get(telemetry.MetricInstantaneousSpeed); ok {
			rs.speed.observe(v)
		}
	}
	if v, ok := s.Get(telemetry.MetricTotalDistance); ok {
		if v < rs.distance {
			anomalies++
		}
		rs.distance = v
	}
	if v, ok := s.Get(telemetry.MetricTotalEnergy); ok {
		if v < rs.energy {
			anomalies++
		}
		rs.energy = v
	}
	if v, ok := s.Get(telemetry.MetricStrokeCount); ok {
		rs.strokes = v
	}
	rs.anomalies += anomalies
	return anomalies
}

// snapshot builds the current running summary without finalize-only fields.
func (rs *runningStats) snapshot() *SummaryStats {
	return &SummaryStats{
		DeviceClass:      rs.class,
		Duration:         rs.lastMonotonic,
		SampleCount:      rs.sampleCount,
		AvgPower:         rs.power.avg(),
		MaxPower:         rs.power.max,
		AvgHeartRate:     rs.hr.avg(),
		MaxHeartRate:     rs.hr.max,
		AvgCadence:       rs.cadence.avg(),
		MaxCadence:       rs.cadence.max,
		AvgSpeed:         rs.speed.avg(),
		MaxSpeed:         rs.speed.max,
		TotalDistance:    rs.distance,
		TotalEnergy:      rs.energy,
		StrokeCount:      rs.strokes,
		CounterAnomalies: rs.anomalies,
	}
}

// finalize computes the end-of-session summary including the multi-sample
// derived metrics.
func (rs *runningStats) finalize(wallDuration float64, profile AthleteProfile) *SummaryStats {
	stats := rs.snapshot()
	if stats.Duration <= 0 {
		stats.Duration = wallDuration
	}

	np, ok := normalizedPower(rs.powerSeries)
	if !ok {
		return stats
	}
	np = round1(np)
	stats.NormalizedPower = &np

	ftp := profile.FTPWatts
	if ftp <= 0 {
		ftp = defaultFTPWatts
	}
	intensity := round2(np / ftp)
	stats.IntensityFactor = &intensity

	tss := round1(100.0 * (stats.Duration / 3600.0) * intensity * intensity)
	stats.TrainingStress = &tss

	if v, ok := estimateVO2Max(stats, profile); ok {
		stats.EstimatedVO2Max = &v
	}
	return stats
}

// normalizedPower is the 4th-power rolling-mean transform over a fixed
// 30-sample window. Fewer than 30 power-bearing samples yields no value.
func normalizedPower(power []float64) (float64, bool) {
	if len(power) < npWindowSamples {
		return 0, false
	}

	sum := 0.0
	for i := 0; i < npWindowSamples; i++ {
		sum += power[i]
	}

	fourthTotal := 0.0
	count := 0
	for i := npWindowSamples - 1; i < len(power); i++ {
		if i >= npWindowSamples {
			sum += power[i] - power[i-npWindowSamples]
		}
		rolling := sum / float64(npWindowSamples)
		fourthTotal += math.Pow(rolling, 4)
		count++
	}
	return math.Pow(fourthTotal/float64(count), 0.25), true
}

// estimateVO2Max is a best-effort estimate from average power-to-weight and
// heart-rate reserve. Preconditions failing means absent, not zero.
func estimateVO2Max(stats *SummaryStats, profile AthleteProfile) (float64, bool) {
	if stats.AvgHeartRate <= 120 || stats.MaxHeartRate <= 130 || profile.WeightKG <= 0 {
		return 0, false
	}
	v := (stats.AvgPower / profile.WeightKG) * 10.8 * (1 + (1 - stats.AvgHeartRate/stats.MaxHeartRate))
	if v < 20 {
		v = 20
	}
	if v > 90 {
		v = 90
	}
	return v, true
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// AsMap flattens the summary for the storage collaborator.
func (s *SummaryStats) AsMap() map[string]float64 {
	out := map[string]float64{
		"duration_s":        s.Duration,
		"sample_count":      float64(s.SampleCount),
		"avg_power_w":       s.AvgPower,
		"max_power_w":       s.MaxPower,
		"avg_hr_bpm":        s.AvgHeartRate,
		"max_hr_bpm":        s.MaxHeartRate,
		"avg_cadence":       s.AvgCadence,
		"max_cadence":       s.MaxCadence,
		"avg_speed_kmh":     s.AvgSpeed,
		"max_speed_kmh":     s.MaxSpeed,
		"total_distance_m":  s.TotalDistance,
		"total_energy":      s.TotalEnergy,
		"stroke_count":      s.StrokeCount,
		"counter_anomalies": float64(s.CounterAnomalies),
	}
	if s.NormalizedPower != nil {
		out["normalized_power_w"] = *s.NormalizedPower
	}
	if s.IntensityFactor != nil {
		out["intensity_factor"] = *s.IntensityFactor
	}
	if s.TrainingStress != nil {
		out["training_stress_score"] = *s.TrainingStress
	}
	if s.EstimatedVO2Max != nil {
		out["estimated_vo2max"] = *s.EstimatedVO2Max
	}
	return out
}

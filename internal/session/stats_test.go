package session

import (
	"math"
	"testing"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

func powerSample(t float64, watts float64) telemetry.Sample {
	return telemetry.Sample{
		DeviceClass:   telemetry.DeviceCycle,
		MonotonicTime: t,
		Fields: map[telemetry.Metric]float64{
			telemetry.MetricInstantaneousPower: watts,
		},
	}
}

func TestNormalizedPowerConstantSeries(t *testing.T) {
	series := make([]float64, 60)
	for i := range series {
		series[i] = 200
	}
	np, ok := normalizedPower(series)
	if !ok {
		t.Fatal("expected normalized power for 60 samples")
	}
	if math.Abs(np-200.0) > 1e-9 {
		t.Fatalf("normalized power = %v, want 200.0", np)
	}
}

func TestNormalizedPowerBelowThreshold(t *testing.T) {
	series := make([]float64, 29)
	for i := range series {
		series[i] = 250
	}
	if _, ok := normalizedPower(series); ok {
		t.Fatal("expected no normalized power below 30 samples")
	}
}

func TestFinalizeDerivedMetrics(t *testing.T) {
	rs := newRunningStats(telemetry.DeviceCycle)
	for i := 0; i <= 3600; i++ {
		rs.observe(powerSample(float64(i), 200))
	}

	stats := rs.finalize(3600, AthleteProfile{})
	if stats.NormalizedPower == nil || *stats.NormalizedPower != 200.0 {
		t.Fatalf("normalized power = %v, want 200.0", stats.NormalizedPower)
	}
	// Default FTP is 200 W, so an hour at 200 W is IF 1.00 and TSS 100.
	if stats.IntensityFactor == nil || *stats.IntensityFactor != 1.0 {
		t.Fatalf("intensity factor = %v, want 1.0", stats.IntensityFactor)
	}
	if stats.TrainingStress == nil || *stats.TrainingStress != 100.0 {
		t.Fatalf("training stress = %v, want 100.0", stats.TrainingStress)
	}
	if stats.EstimatedVO2Max != nil {
		t.Fatal("vo2max should be absent without heart rate and weight")
	}
}

func TestFinalizeBelowThresholdLeavesDerivedAbsent(t *testing.T) {
	rs := newRunningStats(telemetry.DeviceCycle)
	for i := 0; i < 10; i++ {
		rs.observe(powerSample(float64(i), 180))
	}
	stats := rs.finalize(10, AthleteProfile{FTPWatts: 250})
	if stats.NormalizedPower != nil {
		t.Fatalf("normalized power should be absent, got %v", *stats.NormalizedPower)
	}
	if stats.IntensityFactor != nil || stats.TrainingStress != nil {
		t.Fatal("intensity factor and training stress should be absent")
	}
	if stats.AvgPower != 180 {
		t.Fatalf("avg power = %v, want 180", stats.AvgPower)
	}
}

func TestRunningStatsIgnoresAbsentFields(t *testing.T) {
	rs := newRunningStats(telemetry.DeviceCycle)
	rs.observe(powerSample(0, 100))
	// Heart-rate-only sample must not perturb the power statistics.
	rs.observe(telemetry.Sample{
		DeviceClass:   telemetry.DeviceCycle,
		MonotonicTime: 1,
		Fields:        map[telemetry.Metric]float64{telemetry.MetricHeartRate: 140},
	})
	rs.observe(powerSample(2, 300))

	snap := rs.snapshot()
	if snap.AvgPower != 200 {
		t.Fatalf("avg power = %v, want 200 (absent fields treated as no observation)", snap.AvgPower)
	}
	if snap.MaxPower != 300 {
		t.Fatalf("max power = %v, want 300", snap.MaxPower)
	}
	if snap.AvgHeartRate != 140 || snap.MaxHeartRate != 140 {
		t.Fatalf("heart rate avg/max = %v/%v, want 140/140", snap.AvgHeartRate, snap.MaxHeartRate)
	}
	if snap.SampleCount != 3 {
		t.Fatalf("sample count = %d, want 3", snap.SampleCount)
	}
}

func TestCounterAnomalyFlaggedNotFixed(t *testing.T) {
	rs := newRunningStats(telemetry.DeviceCycle)
	mk := func(t, dist float64) telemetry.Sample {
		return telemetry.Sample{
			DeviceClass:   telemetry.DeviceCycle,
			MonotonicTime: t,
			Fields:        map[telemetry.Metric]float64{telemetry.MetricTotalDistance: dist},
		}
	}
	rs.observe(mk(0, 1000))
	if n := rs.observe(mk(1, 400)); n != 1 {
		t.Fatalf("expected 1 anomaly for decreasing distance, got %d", n)
	}

	snap := rs.snapshot()
	if snap.TotalDistance != 400 {
		t.Fatalf("total distance = %v, want 400 (stored as reported)", snap.TotalDistance)
	}
	if snap.CounterAnomalies != 1 {
		t.Fatalf("counter anomalies = %d, want 1", snap.CounterAnomalies)
	}
}

func TestEstimateVO2Max(t *testing.T) {
	stats := &SummaryStats{AvgPower: 210, AvgHeartRate: 150, MaxHeartRate: 180}
	profile := AthleteProfile{WeightKG: 70}
	v, ok := estimateVO2Max(stats, profile)
	if !ok {
		t.Fatal("expected vo2max estimate")
	}
	want := (210.0 / 70.0) * 10.8 * (1 + (1 - 150.0/180.0))
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("vo2max = %v, want %v", v, want)
	}

	// Low heart rate fails the precondition.
	stats.AvgHeartRate = 100
	if _, ok := estimateVO2Max(stats, profile); ok {
		t.Fatal("expected no estimate with avg heart rate below 120")
	}
}

func TestRowerUsesStrokeRateForCadence(t *testing.T) {
	rs := newRunningStats(telemetry.DeviceRow)
	rs.observe(telemetry.Sample{
		DeviceClass:   telemetry.DeviceRow,
		MonotonicTime: 0,
		Fields: map[telemetry.Metric]float64{
			telemetry.MetricStrokeRate:  28,
			telemetry.MetricStrokeCount: 150,
		},
	})
	snap := rs.snapshot()
	if snap.AvgCadence != 28 || snap.MaxCadence != 28 {
		t.Fatalf("cadence avg/max = %v/%v, want 28/28", snap.AvgCadence, snap.MaxCadence)
	}
	if snap.StrokeCount != 150 {
		t.Fatalf("stroke count = %v, want 150", snap.StrokeCount)
	}
}

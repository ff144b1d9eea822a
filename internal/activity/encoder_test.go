package activity

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tormoder/fit"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/session"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

func rampWorkout(t *testing.T) (*session.Workout, *session.SummaryStats) {
	t.Helper()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &session.Workout{
		ID:          uuid.New(),
		DeviceClass: telemetry.DeviceCycle,
		StartTime:   start,
		EndTime:     start.Add(60 * time.Second),
	}

	var sum, max float64
	for i := 0; i <= 60; i++ {
		power := 100.0 + float64(i)*100.0/60.0
		sum += power
		if power > max {
			max = power
		}
		w.Samples = append(w.Samples, telemetry.Sample{
			DeviceClass:   telemetry.DeviceCycle,
			MonotonicTime: float64(i),
			Fields: map[telemetry.Metric]float64{
				telemetry.MetricInstantaneousPower:   power,
				telemetry.MetricInstantaneousSpeed:   36.0,
				telemetry.MetricInstantaneousCadence: 90,
				telemetry.MetricTotalDistance:        float64(i) * 10,
			},
		})
	}

	stats := &session.SummaryStats{
		DeviceClass:   telemetry.DeviceCycle,
		Duration:      60,
		SampleCount:   len(w.Samples),
		AvgPower:      sum / float64(len(w.Samples)),
		MaxPower:      max,
		AvgCadence:    90,
		MaxCadence:    90,
		AvgSpeed:      36.0,
		MaxSpeed:      36.0,
		TotalDistance: 600,
	}
	return w, stats
}

func TestEncodeFullRoundTrip(t *testing.T) {
	w, stats := rampWorkout(t)
	enc := NewEncoder(t.TempDir())

	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "_full.fit") {
		t.Fatalf("expected full-tier file name, got %s", path)
	}

	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if !got.HasSession {
		t.Fatal("full-tier file missing session message")
	}
	if got.RecordCount != 61 {
		t.Fatalf("record count = %d, want 61", got.RecordCount)
	}
	if math.Abs(got.AvgPowerWatts-stats.AvgPower) > 1 {
		t.Fatalf("avg power = %.1f, want %.1f within 1 W", got.AvgPowerWatts, stats.AvgPower)
	}
	if got.MaxPowerWatts != 200 {
		t.Fatalf("max power = %.1f, want 200", got.MaxPowerWatts)
	}
	if math.Abs(got.ElapsedSeconds-60) > 0.001 {
		t.Fatalf("elapsed = %.3f, want 60", got.ElapsedSeconds)
	}
	if !strings.Contains(strings.ToLower(got.Sport), "cycling") {
		t.Fatalf("sport = %q, want cycling", got.Sport)
	}
}

func TestEncodeConvertsSpeedToMetersPerSecond(t *testing.T) {
	w, stats := rampWorkout(t)
	enc := NewEncoder(t.TempDir())

	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}

	// 36 km/h must land on disk as 10 m/s at all three speed sites: the
	// summary average, the summary max, and every per-sample record.
	if math.Abs(got.AvgSpeedMps-10.0) > 0.001 {
		t.Fatalf("avg speed = %.3f m/s, want 10", got.AvgSpeedMps)
	}
	if math.Abs(got.MaxSpeedMps-10.0) > 0.001 {
		t.Fatalf("max speed = %.3f m/s, want 10", got.MaxSpeedMps)
	}

	act := decodeActivityFile(t, path)
	if len(act.Records) == 0 {
		t.Fatal("no records in file")
	}
	for i, rec := range act.Records {
		if speed := rec.GetEnhancedSpeedScaled(); math.Abs(speed-10.0) > 0.001 {
			t.Fatalf("record %d speed = %.3f m/s, want 10", i, speed)
		}
	}
}

func decodeActivityFile(t *testing.T, path string) *fit.ActivityFile {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	act, err := decoded.Activity()
	if err != nil {
		t.Fatalf("activity file expected: %v", err)
	}
	return act
}

func TestEncodeDerivedPowerMetrics(t *testing.T) {
	w, stats := rampWorkout(t)
	np := 150.0
	stats.NormalizedPower = &np
	enc := NewEncoder(t.TempDir())

	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if got.NormalizedPower != 150 {
		t.Fatalf("normalized power = %.0f, want 150", got.NormalizedPower)
	}
}

func TestEncodeRowerSport(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &session.Workout{
		ID:          uuid.New(),
		DeviceClass: telemetry.DeviceRow,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Second),
		Samples: []telemetry.Sample{{
			DeviceClass:   telemetry.DeviceRow,
			MonotonicTime: 0,
			Fields: map[telemetry.Metric]float64{
				telemetry.MetricInstantaneousPower: 150,
				telemetry.MetricStrokeRate:         28,
			},
		}},
	}
	stats := &session.SummaryStats{
		DeviceClass: telemetry.DeviceRow,
		Duration:    30,
		SampleCount: 1,
		AvgPower:    150,
		MaxPower:    150,
		StrokeCount: 14,
	}

	enc := NewEncoder(t.TempDir())
	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if !strings.Contains(strings.ToLower(got.Sport), "rowing") {
		t.Fatalf("sport = %q, want rowing", got.Sport)
	}
}

func TestEncodeFallbackTier(t *testing.T) {
	w, stats := rampWorkout(t)
	enc := NewEncoder(t.TempDir(), WithBuildFault(func(tier Tier) error {
		if tier == TierFull {
			return errors.New("injected full-tier failure")
		}
		return nil
	}))

	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "_fallback.fit") {
		t.Fatalf("expected fallback-tier file name, got %s", path)
	}

	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if !got.HasSession {
		t.Fatal("fallback file missing session message")
	}
	if got.RecordCount != 2 {
		t.Fatalf("fallback record count = %d, want 2", got.RecordCount)
	}
	if math.Abs(got.ElapsedSeconds-60) > 0.001 {
		t.Fatalf("fallback elapsed = %.3f, want 60", got.ElapsedSeconds)
	}
}

func TestEncodeEmergencyTier(t *testing.T) {
	w, stats := rampWorkout(t)
	enc := NewEncoder(t.TempDir(), WithBuildFault(func(tier Tier) error {
		if tier == TierEmergency {
			return nil
		}
		return fmt.Errorf("injected %s-tier failure", tier)
	}))

	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "_emergency.fit") {
		t.Fatalf("expected emergency-tier file name, got %s", path)
	}

	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if got.HasSession {
		t.Fatal("emergency file should carry no session message")
	}
}

func TestEncodeAllTiersFail(t *testing.T) {
	w, stats := rampWorkout(t)
	enc := NewEncoder(t.TempDir(), WithBuildFault(func(tier Tier) error {
		return fmt.Errorf("injected %s-tier failure", tier)
	}))

	_, err := enc.Encode(w, stats, session.AthleteProfile{})
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("err = %v, want ErrEncodeFailed", err)
	}
}

func TestEncodeNegativePowerClampedToZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &session.Workout{
		ID:          uuid.New(),
		DeviceClass: telemetry.DeviceCycle,
		StartTime:   start,
		EndTime:     start.Add(time.Second),
		Samples: []telemetry.Sample{{
			DeviceClass:   telemetry.DeviceCycle,
			MonotonicTime: 0,
			Fields: map[telemetry.Metric]float64{
				telemetry.MetricInstantaneousPower: -25,
			},
		}},
	}
	stats := &session.SummaryStats{
		DeviceClass: telemetry.DeviceCycle,
		Duration:    1,
		SampleCount: 1,
	}

	enc := NewEncoder(t.TempDir())
	path, err := enc.Encode(w, stats, session.AthleteProfile{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if got.RecordCount != 1 {
		t.Fatalf("record count = %d, want 1", got.RecordCount)
	}
}

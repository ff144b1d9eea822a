// Package export writes a finished workout's sample series to parquet or
// CSV for downstream analysis tooling.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/session"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

// SampleRow is the canonical flat representation of one telemetry sample.
// Nil pointers mean the device never reported the field in that frame.
type SampleRow struct {
	TSUTCISO    string    `json:"ts_utc_iso"`
	Timestamp   time.Time `json:"-"`
	ElapsedS    float64   `json:"elapsed_s"`
	PowerW      *float64  `json:"power_w,omitempty"`
	HRBPM       *float64  `json:"hr_bpm,omitempty"`
	CadenceRPM  *float64  `json:"cadence_rpm,omitempty"`
	SpeedKMH    *float64  `json:"speed_kmh,omitempty"`
	DistanceM   *float64  `json:"distance_m,omitempty"`
	EnergyKcal  *float64  `json:"energy_kcal,omitempty"`
	StrokeCount *float64  `json:"stroke_count,omitempty"`
	PaceS500M   *float64  `json:"pace_s_500m,omitempty"`
	ValidPower  bool      `json:"valid_power"`
	ValidHR     bool      `json:"valid_hr"`
	SampleIndex int       `json:"sample_index"`
}

// BuildRows flattens a workout's samples into canonical rows, resolving the
// device class's cadence convention.
func BuildRows(w *session.Workout) []SampleRow {
	cadenceMetric := telemetry.MetricInstantaneousCadence
	if w.DeviceClass == telemetry.DeviceRow {
		cadenceMetric = telemetry.MetricStrokeRate
	}

	rows := make([]SampleRow, 0, len(w.Samples))
	for i, s := range w.Samples {
		ts := w.StartTime.Add(time.Duration(s.MonotonicTime * float64(time.Second))).UTC()
		row := SampleRow{
			TSUTCISO:    ts.Format(time.RFC3339),
			Timestamp:   ts,
			ElapsedS:    s.MonotonicTime,
			PowerW:      fieldPtr(s, telemetry.MetricInstantaneousPower),
			HRBPM:       fieldPtr(s, telemetry.MetricHeartRate),
			CadenceRPM:  fieldPtr(s, cadenceMetric),
			SpeedKMH:    fieldPtr(s, telemetry.MetricInstantaneousSpeed),
			DistanceM:   fieldPtr(s, telemetry.MetricTotalDistance),
			EnergyKcal:  fieldPtr(s, telemetry.MetricTotalEnergy),
			StrokeCount: fieldPtr(s, telemetry.MetricStrokeCount),
			PaceS500M:   fieldPtr(s, telemetry.MetricInstantaneousPace),
			SampleIndex: i,
		}
		row.ValidPower = row.PowerW != nil
		row.ValidHR = row.HRBPM != nil
		rows = append(rows, row)
	}
	return rows
}

// Write writes the workout's rows to dir in the requested format and returns
// the file path. Supported formats are "parquet" and "csv".
func Write(dir string, w *session.Workout, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}

	rows := BuildRows(w)
	path := filepath.Join(dir, fmt.Sprintf("samples_%s.%s", w.ID, format))
	switch format {
	case "csv":
		if err := writeCSV(path, rows); err != nil {
			return "", fmt.Errorf("write sample csv: %w", err)
		}
	case "parquet":
		if err := writeParquet(path, rows); err != nil {
			return "", fmt.Errorf("write sample parquet: %w", err)
		}
	}
	return path, nil
}

func fieldPtr(s telemetry.Sample, m telemetry.Metric) *float64 {
	if v, ok := s.Get(m); ok {
		return &v
	}
	return nil
}

func writeCSV(path string, rows []SampleRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"ts_utc_iso", "elapsed_s", "power_w", "hr_bpm", "cadence_rpm", "speed_kmh",
		"distance_m", "energy_kcal", "stroke_count", "pace_s_500m",
		"valid_power", "valid_hr", "sample_index",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			r.TSUTCISO,
			formatFloat(r.ElapsedS),
			formatFloatPtr(r.PowerW),
			formatFloatPtr(r.HRBPM),
			formatFloatPtr(r.CadenceRPM),
			formatFloatPtr(r.SpeedKMH),
			formatFloatPtr(r.DistanceM),
			formatFloatPtr(r.EnergyKcal),
			formatFloatPtr(r.StrokeCount),
			formatFloatPtr(r.PaceS500M),
			strconv.FormatBool(r.ValidPower),
			strconv.FormatBool(r.ValidHR),
			strconv.Itoa(r.SampleIndex),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

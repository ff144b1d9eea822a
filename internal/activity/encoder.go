package activity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/basetype"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"go.uber.org/zap"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/session"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

// ErrEncodeFailed is returned only after every fallback tier has failed.
var ErrEncodeFailed = errors.New("activity: all encode tiers failed")

// kmhToMps converts the device's km/h speed convention to the file format's
// m/s convention. Applied at every site a speed is written.
const kmhToMps = 1.0 / 3.6

const (
	manufacturerSerial = 0xEC40
	fallbackSpanSec    = 60
)

// Tier identifies which rung of the fallback ladder produced a file.
type Tier int

const (
	TierFull Tier = iota + 1
	TierFallback
	TierEmergency
)

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierFallback:
		return "fallback"
	case TierEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Encoder writes one ended workout as a FIT activity file. A build or
// serialize failure at one tier falls through to the next, simpler tier;
// only a tier-3 failure surfaces as an error.
type Encoder struct {
	dir        string
	logger     *zap.Logger
	now        func() time.Time
	buildFault func(Tier) error
}

type EncoderOption func(*Encoder)

func WithLogger(logger *zap.Logger) EncoderOption {
	return func(e *Encoder) { e.logger = logger }
}

// WithClock overrides the wall clock used for timestamp fallbacks.
func WithClock(now func() time.Time) EncoderOption {
	return func(e *Encoder) { e.now = now }
}

// WithBuildFault installs a hook invoked before each tier's build step.
// Returning an error forces that tier to fail; used to exercise the ladder.
func WithBuildFault(fault func(Tier) error) EncoderOption {
	return func(e *Encoder) { e.buildFault = fault }
}

func NewEncoder(dir string, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		dir:    dir,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode writes the workout to disk and returns the file path. The tier
// marker is embedded in the file name so degraded output is detectable.
func (e *Encoder) Encode(w *session.Workout, stats *session.SummaryStats, profile session.AthleteProfile) (string, error) {
	builders := []struct {
		tier  Tier
		build func(*session.Workout, *session.SummaryStats, session.AthleteProfile) *proto.FIT
	}{
		{TierFull, e.buildFull},
		{TierFallback, e.buildFallbackFile},
		{TierEmergency, e.buildEmergencyFile},
	}

	var lastErr error
	for _, b := range builders {
		path := filepath.Join(e.dir, fmt.Sprintf("activity_%s_%s.fit", w.ID, b.tier))
		if err := e.writeTier(b.tier, path, func() *proto.FIT { return b.build(w, stats, profile) }); err != nil {
			lastErr = err
			e.logger.Warn("encode tier failed, degrading",
				zap.Stringer("tier", b.tier),
				zap.Error(err))
			continue
		}
		if b.tier != TierFull {
			e.logger.Warn("activity file written at degraded tier",
				zap.Stringer("tier", b.tier),
				zap.String("path", path))
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %v", ErrEncodeFailed, lastErr)
}

func (e *Encoder) writeTier(tier Tier, path string, build func() *proto.FIT) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build tier %s: panic: %v", tier, r)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if e.buildFault != nil {
		if ferr := e.buildFault(tier); ferr != nil {
			return fmt.Errorf("build tier %s: %w", tier, ferr)
		}
	}
	fitFile := build()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := encoder.New(f).Encode(fitFile); err != nil {
		return fmt.Errorf("serialize tier %s: %w", tier, err)
	}
	return nil
}

func sportFor(class telemetry.DeviceClass) (typedef.Sport, typedef.SubSport) {
	if class == telemetry.DeviceRow {
		return typedef.SportRowing, typedef.SubSportIndoorRowing
	}
	return typedef.SportCycling, typedef.SubSportIndoorCycling
}

func (e *Encoder) fileID(timestamped bool, start time.Time) proto.Message {
	id := mesgdef.FileId{
		Type:         typedef.FileActivity,
		Manufacturer: typedef.ManufacturerDevelopment,
		Product:      basetype.Uint16Invalid,
		SerialNumber: manufacturerSerial,
	}
	if timestamped {
		id.TimeCreated = fileTime(start, e.now, e.logger)
	}
	return id.ToMesg(nil)
}

func (e *Encoder) timerEvent(ts time.Time, eventType typedef.EventType) proto.Message {
	ev := mesgdef.Event{
		Timestamp: fileTime(ts, e.now, e.logger),
		Event:     typedef.EventTimer,
		EventType: eventType,
	}
	return ev.ToMesg(nil)
}

// buildFull emits the complete record set: device info, start event, one
// record per sample, a summary session and the closing activity message.
func (e *Encoder) buildFull(w *session.Workout, stats *session.SummaryStats, profile session.AthleteProfile) *proto.FIT {
	fitFile := &proto.FIT{}
	fitFile.Messages = append(fitFile.Messages, e.fileID(true, w.StartTime))
	fitFile.Messages = append(fitFile.Messages, e.timerEvent(w.StartTime, typedef.EventTypeStart))

	cadenceMetric := telemetry.MetricInstantaneousCadence
	if w.DeviceClass == telemetry.DeviceRow {
		cadenceMetric = telemetry.MetricStrokeRate
	}

	for _, sample := range w.Samples {
		rec := mesgdef.Record{
			Timestamp: fileTime(w.StartTime.Add(time.Duration(sample.MonotonicTime*float64(time.Second))), e.now, e.logger),
			Power:     basetype.Uint16Invalid,
			HeartRate: basetype.Uint8Invalid,
			Cadence:   basetype.Uint8Invalid,
			Distance:  basetype.Uint32Invalid,
			Speed:     basetype.Uint16Invalid,
		}
		if v, ok := sample.Get(telemetry.MetricInstantaneousPower); ok {
			if v < 0 {
				v = 0
			}
			rec.Power = uint16(v)
		}
		if v, ok := sample.Get(cadenceMetric); ok {
			rec.Cadence = uint8(v)
		}
		if v, ok := sample.Get(telemetry.MetricHeartRate); ok && v > 0 {
			rec.HeartRate = uint8(v)
		}
		if v, ok := sample.Get(telemetry.MetricTotalDistance); ok {
			rec.Distance = uint32(v * 100)
		}
		if v, ok := sample.Get(telemetry.MetricInstantaneousSpeed); ok {
			rec.Speed = uint16(v * kmhToMps * 1000)
		}
		fitFile.Messages = append(fitFile.Messages, rec.ToMesg(nil))
	}

	fitFile.Messages = append(fitFile.Messages, e.timerEvent(w.EndTime, typedef.EventTypeStopAll))
	fitFile.Messages = append(fitFile.Messages, e.lap(w, stats).ToMesg(nil))
	fitFile.Messages = append(fitFile.Messages, e.session(w, stats).ToMesg(nil))
	fitFile.Messages = append(fitFile.Messages, e.activity(w, stats).ToMesg(nil))
	return fitFile
}

func (e *Encoder) lap(w *session.Workout, stats *session.SummaryStats) *mesgdef.Lap {
	durationMs := uint32(stats.Duration * 1000)
	return &mesgdef.Lap{
		Timestamp:        fileTime(w.EndTime, e.now, e.logger),
		StartTime:        fileTime(w.StartTime, e.now, e.logger),
		TotalElapsedTime: durationMs,
		TotalTimerTime:   durationMs,
		TotalDistance:    uint32(stats.TotalDistance * 100),
		AvgPower:         uint16(stats.AvgPower),
		MaxPower:         uint16(stats.MaxPower),
		Event:            typedef.EventLap,
		EventType:        typedef.EventTypeStop,
	}
}

func (e *Encoder) session(w *session.Workout, stats *session.SummaryStats) *mesgdef.Session {
	sport, subSport := sportFor(w.DeviceClass)
	durationMs := uint32(stats.Duration * 1000)

	s := &mesgdef.Session{
		Timestamp:           fileTime(w.EndTime, e.now, e.logger),
		StartTime:           fileTime(w.StartTime, e.now, e.logger),
		TotalElapsedTime:    durationMs,
		TotalTimerTime:      durationMs,
		TotalDistance:       uint32(stats.TotalDistance * 100),
		TotalCalories:       uint16(stats.TotalEnergy),
		AvgPower:            uint16(stats.AvgPower),
		MaxPower:            uint16(stats.MaxPower),
		AvgCadence:          uint8(stats.AvgCadence),
		MaxCadence:          uint8(stats.MaxCadence),
		AvgHeartRate:        basetype.Uint8Invalid,
		MaxHeartRate:        basetype.Uint8Invalid,
		NormalizedPower:     basetype.Uint16Invalid,
		IntensityFactor:     basetype.Uint16Invalid,
		TrainingStressScore: basetype.Uint16Invalid,
		TotalCycles:         basetype.Uint32Invalid,
		// Speed sites convert km/h to the format's m/s (scale 1000).
		AvgSpeed:  uint16(stats.AvgSpeed * kmhToMps * 1000),
		MaxSpeed:  uint16(stats.MaxSpeed * kmhToMps * 1000),
		Sport:     sport,
		SubSport:  subSport,
		Event:     typedef.EventSession,
		EventType: typedef.EventTypeStop,
		Trigger:   typedef.SessionTriggerActivityEnd,
	}
	if stats.AvgHeartRate > 0 {
		s.AvgHeartRate = uint8(stats.AvgHeartRate)
	}
	if stats.MaxHeartRate > 0 {
		s.MaxHeartRate = uint8(stats.MaxHeartRate)
	}
	if stats.NormalizedPower != nil {
		s.NormalizedPower = uint16(*stats.NormalizedPower)
	}
	if stats.IntensityFactor != nil {
		s.IntensityFactor = uint16(*stats.IntensityFactor * 1000)
	}
	if stats.TrainingStress != nil {
		s.TrainingStressScore = uint16(*stats.TrainingStress * 10)
	}
	if w.DeviceClass == telemetry.DeviceRow && stats.StrokeCount > 0 {
		s.TotalCycles = uint32(stats.StrokeCount)
	}
	return s
}

func (e *Encoder) activity(w *session.Workout, stats *session.SummaryStats) *mesgdef.Activity {
	return &mesgdef.Activity{
		Timestamp:      fileTime(w.EndTime, e.now, e.logger),
		TotalTimerTime: uint32(stats.Duration * 1000),
		NumSessions:    1,
		Type:           typedef.ActivityManual,
		Event:          typedef.EventActivity,
		EventType:      typedef.EventTypeStop,
	}
}

// buildFallbackFile writes a minimal but valid file from session metadata
// alone: untimestamped identity, two synthetic samples 60 seconds apart with
// placeholder values, and a minimal summary. Must succeed for any input.
func (e *Encoder) buildFallbackFile(w *session.Workout, _ *session.SummaryStats, _ session.AthleteProfile) *proto.FIT {
	sport, subSport := sportFor(w.DeviceClass)
	start := fileTime(w.StartTime, e.now, e.logger)
	end := start.Add(fallbackSpanSec * time.Second)

	fitFile := &proto.FIT{}
	fitFile.Messages = append(fitFile.Messages, e.fileID(false, time.Time{}))
	fitFile.Messages = append(fitFile.Messages, e.timerEvent(start, typedef.EventTypeStart))

	for _, ts := range []time.Time{start, end} {
		rec := mesgdef.Record{
			Timestamp: fileTime(ts, e.now, e.logger),
			Power:     0,
			Cadence:   0,
			Distance:  0,
			HeartRate: basetype.Uint8Invalid,
			Speed:     basetype.Uint16Invalid,
		}
		fitFile.Messages = append(fitFile.Messages, rec.ToMesg(nil))
	}

	fitFile.Messages = append(fitFile.Messages, e.timerEvent(end, typedef.EventTypeStopAll))
	s := &mesgdef.Session{
		Timestamp:           fileTime(end, e.now, e.logger),
		StartTime:           start,
		TotalElapsedTime:    fallbackSpanSec * 1000,
		TotalTimerTime:      fallbackSpanSec * 1000,
		AvgHeartRate:        basetype.Uint8Invalid,
		MaxHeartRate:        basetype.Uint8Invalid,
		NormalizedPower:     basetype.Uint16Invalid,
		IntensityFactor:     basetype.Uint16Invalid,
		TrainingStressScore: basetype.Uint16Invalid,
		TotalCycles:         basetype.Uint32Invalid,
		Sport:               sport,
		SubSport:            subSport,
		Event:               typedef.EventSession,
		EventType:           typedef.EventTypeStop,
		Trigger:             typedef.SessionTriggerActivityEnd,
	}
	fitFile.Messages = append(fitFile.Messages, s.ToMesg(nil))
	fitFile.Messages = append(fitFile.Messages, (&mesgdef.Activity{
		Timestamp:      fileTime(end, e.now, e.logger),
		TotalTimerTime: fallbackSpanSec * 1000,
		NumSessions:    1,
		Type:           typedef.ActivityManual,
		Event:          typedef.EventActivity,
		EventType:      typedef.EventTypeStop,
	}).ToMesg(nil))
	return fitFile
}

// buildEmergencyFile is the smallest valid file: the identity record alone.
func (e *Encoder) buildEmergencyFile(_ *session.Workout, _ *session.SummaryStats, _ session.AthleteProfile) *proto.FIT {
	fitFile := &proto.FIT{}
	fitFile.Messages = append(fitFile.Messages, e.fileID(false, time.Time{}))
	return fitFile
}

package telemetry

import (
	"errors"
)

// ErrFrameTooShort is returned for buffers that cannot even hold the
// two-byte presence flags. The caller should log and drop the frame.
var ErrFrameTooShort = errors.New("telemetry: frame shorter than flags field")

type fieldRule func(b []byte) float64

// fieldPart is one fixed-width value inside a frame field. Most fields have
// a single part; the expended-energy field is a contiguous triple under one
// presence bit.
type fieldPart struct {
	name  Metric
	width int
	rule  fieldRule
}

type frameField struct {
	bit   uint
	parts []fieldPart
}

func leU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func scaledU16(scale float64) fieldRule {
	return func(b []byte) float64 { return float64(leU16(b)) * scale }
}

func rawU16(b []byte) float64 { return float64(leU16(b)) }

func rawU24(b []byte) float64 {
	return float64(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
}

// Signed 16-bit power may legitimately be negative (eddy-current readback);
// it is passed through unmodified.
func rawS16(b []byte) float64 { return float64(int16(leU16(b))) }

func rawU8(b []byte) float64 { return float64(b[0]) }

func rawS8(b []byte) float64 { return float64(int8(b[0])) }

func scaledU8(scale float64) fieldRule {
	return func(b []byte) float64 { return float64(b[0]) * scale }
}

func single(bit uint, name Metric, width int, rule fieldRule) frameField {
	return frameField{bit: bit, parts: []fieldPart{{name: name, width: width, rule: rule}}}
}

// cycleFields is the ordered bit->field layout for ergometer bike frames.
// Bit order and widths follow the FTMS indoor-bike characteristic shape.
var cycleFields = []frameField{
	single(0, MetricInstantaneousSpeed, 2, scaledU16(0.01)),
	single(1, MetricAverageSpeed, 2, scaledU16(0.01)),
	single(2, MetricInstantaneousCadence, 2, scaledU16(0.5)),
	single(3, MetricAverageCadence, 2, scaledU16(0.5)),
	single(4, MetricTotalDistance, 3, rawU24),
	single(5, MetricResistanceLevel, 1, rawS8),
	single(6, MetricInstantaneousPower, 2, rawS16),
	single(7, MetricAveragePower, 2, rawS16),
	{bit: 8, parts: []fieldPart{
		{name: MetricTotalEnergy, width: 2, rule: rawU16},
		{name: MetricEnergyPerHour, width: 2, rule: rawU16},
		{name: MetricEnergyPerMinute, width: 1, rule: rawU8},
	}},
	single(9, MetricHeartRate, 1, rawU8),
	single(10, MetricMetabolicEquivalent, 1, scaledU8(0.1)),
	single(11, MetricElapsedTime, 2, rawU16),
	single(12, MetricRemainingTime, 2, rawU16),
}

// rowFields is the ordered bit->field layout for rowing ergometer frames.
var rowFields = []frameField{
	single(0, MetricStrokeRate, 2, scaledU16(0.5)),
	single(1, MetricStrokeCount, 2, rawU16),
	single(2, MetricAverageStrokeRate, 2, scaledU16(0.5)),
	single(3, MetricTotalDistance, 3, rawU24),
	single(4, MetricInstantaneousPace, 2, rawU16),
	single(5, MetricAveragePace, 2, rawU16),
	single(6, MetricInstantaneousPower, 2, rawS16),
	single(7, MetricAveragePower, 2, rawS16),
	single(8, MetricResistanceLevel, 1, rawS8),
	{bit: 9, parts: []fieldPart{
		{name: MetricTotalEnergy, width: 2, rule: rawU16},
		{name: MetricEnergyPerHour, width: 2, rule: rawU16},
		{name: MetricEnergyPerMinute, width: 1, rule: rawU8},
	}},
	single(10, MetricHeartRate, 1, rawU8),
	single(11, MetricMetabolicEquivalent, 1, scaledU8(0.1)),
	single(12, MetricElapsedTime, 2, rawU16),
	single(13, MetricRemainingTime, 2, rawU16),
}

func fieldsFor(class DeviceClass) []frameField {
	if class == DeviceRow {
		return rowFields
	}
	return cycleFields
}

// DecodeFrame decodes one raw notification payload into a Sample.
//
// The first two bytes are a little-endian presence bitmask; each set bit
// pulls a fixed-width value off the buffer in the layout order for the
// device class. A set bit with insufficient trailing bytes truncates the
// decode at that point rather than failing the frame: one malformed
// notification must not stall the live stream.
func DecodeFrame(raw []byte, class DeviceClass) (Sample, error) {
	if len(raw) < 2 {
		return Sample{}, ErrFrameTooShort
	}

	flags := leU16(raw)
	cursor := 2
	sample := Sample{
		DeviceClass: class,
		Fields:      make(map[Metric]float64, 8),
	}

	for _, f := range fieldsFor(class) {
		if flags&(1<<f.bit) == 0 {
			continue
		}
		for _, p := range f.parts {
			if cursor+p.width > len(raw) {
				return sample, nil
			}
			sample.Fields[p.name] = p.rule(raw[cursor : cursor+p.width])
			cursor += p.width
		}
	}
	return sample, nil
}

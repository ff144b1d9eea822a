package telemetry

// DeviceClass identifies which kind of fitness machine produced a frame.
type DeviceClass int

const (
	DeviceCycle DeviceClass = iota
	DeviceRow
)

func (d DeviceClass) String() string {
	switch d {
	case DeviceCycle:
		return "cycle"
	case DeviceRow:
		return "row"
	default:
		return "unknown"
	}
}

// Metric names a single telemetry field carried by a frame.
type Metric string

const (
	MetricInstantaneousSpeed   Metric = "instantaneous_speed"
	MetricAverageSpeed         Metric = "average_speed"
	MetricInstantaneousCadence Metric = "instantaneous_cadence"
	MetricAverageCadence       Metric = "average_cadence"
	MetricStrokeRate           Metric = "stroke_rate"
	MetricAverageStrokeRate    Metric = "average_stroke_rate"
	MetricStrokeCount          Metric = "stroke_count"
	MetricTotalDistance        Metric = "total_distance"
	MetricResistanceLevel      Metric = "resistance_level"
	MetricInstantaneousPower   Metric = "instantaneous_power"
	MetricAveragePower         Metric = "average_power"
	MetricTotalEnergy          Metric = "total_energy"
	MetricEnergyPerHour        Metric = "energy_per_hour"
	MetricEnergyPerMinute      Metric = "energy_per_minute"
	MetricHeartRate            Metric = "heart_rate"
	MetricMetabolicEquivalent  Metric = "metabolic_equivalent"
	MetricElapsedTime          Metric = "elapsed_time"
	MetricRemainingTime        Metric = "remaining_time"
	MetricInstantaneousPace    Metric = "instantaneous_pace"
	MetricAveragePace          Metric = "average_pace"
)

// Sample is one decoded telemetry reading. Fields holds only the metrics
// whose presence bit was set in the source frame; absence is not zero.
type Sample struct {
	DeviceClass DeviceClass
	// MonotonicTime is seconds since session start, assigned at receipt by
	// the aggregator, not carried in the frame. Non-decreasing but duplicate
	// values are possible.
	MonotonicTime float64
	Fields        map[Metric]float64
}

// Get returns the value of a metric and whether the frame carried it.
func (s Sample) Get(m Metric) (float64, bool) {
	v, ok := s.Fields[m]
	return v, ok
}

package ble

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

// ReplayTransport emits a fixed sequence of frames on a timer. It stands in
// for a live machine in tests and in simulate mode.
type ReplayTransport struct {
	class    telemetry.DeviceClass
	frames   [][]byte
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplayTransport replays frames at the given interval, then stops.
func NewReplayTransport(class telemetry.DeviceClass, frames [][]byte, interval time.Duration) *ReplayTransport {
	return &ReplayTransport{
		class:    class,
		frames:   frames,
		interval: interval,
	}
}

func (t *ReplayTransport) DeviceClass() telemetry.DeviceClass { return t.class }

func (t *ReplayTransport) Start(ctx context.Context, h FrameHandler) error {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for _, frame := range t.frames {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h(frame)
			}
		}
	}()
	return nil
}

func (t *ReplayTransport) Close() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// SimulatedRide builds a frame sequence resembling a steady indoor ride:
// speed, cadence, power and heart rate present in every frame, power varying
// sinusoidally around base.
func SimulatedRide(seconds int, basePower float64) [][]byte {
	frames := make([][]byte, 0, seconds)
	for i := 0; i < seconds; i++ {
		power := basePower + 30*math.Sin(float64(i)/10)
		frames = append(frames, bikeFrame(28.5, 88, power, 135))
	}
	return frames
}

// bikeFrame encodes an indoor bike frame carrying instantaneous speed,
// cadence, power and heart rate.
func bikeFrame(speedKMH, cadenceRPM, powerW, hr float64) []byte {
	// bits: 0 speed, 2 cadence, 6 power, 9 heart rate
	flags := uint16(1<<0 | 1<<2 | 1<<6 | 1<<9)
	buf := make([]byte, 0, 9)
	buf = binary.LittleEndian.AppendUint16(buf, flags)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(speedKMH*100))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(cadenceRPM*2))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(powerW)))
	buf = append(buf, byte(hr))
	return buf
}

package ble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

// Fitness Machine Service and data characteristic UUIDs.
const (
	ServiceUUIDFitnessMachine = "00001826-0000-1000-8000-00805f9b34fb"
	CharUUIDRowerData         = "00002ad1-0000-1000-8000-00805f9b34fb"
	CharUUIDIndoorBikeData    = "00002ad2-0000-1000-8000-00805f9b34fb"
)

var (
	fitnessMachineService = must(bluetooth.ParseUUID(ServiceUUIDFitnessMachine))
	rowerDataChar         = must(bluetooth.ParseUUID(CharUUIDRowerData))
	indoorBikeDataChar    = must(bluetooth.ParseUUID(CharUUIDIndoorBikeData))
)

func must(v bluetooth.UUID, err error) bluetooth.UUID {
	if err != nil {
		panic(err)
	}
	return v
}

const defaultScanTimeout = 30 * time.Second

// FTMSTransport subscribes to a fitness machine's data characteristic over
// the host's default BLE adapter.
type FTMSTransport struct {
	adapter     *bluetooth.Adapter
	class       telemetry.DeviceClass
	namePrefix  string
	scanTimeout time.Duration
	logger      *zap.Logger

	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
}

type FTMSOption func(*FTMSTransport)

// WithNamePrefix restricts scanning to devices whose advertised name starts
// with prefix. An empty prefix accepts the first machine advertising the
// fitness machine service.
func WithNamePrefix(prefix string) FTMSOption {
	return func(t *FTMSTransport) { t.namePrefix = prefix }
}

func WithScanTimeout(d time.Duration) FTMSOption {
	return func(t *FTMSTransport) { t.scanTimeout = d }
}

func WithLogger(logger *zap.Logger) FTMSOption {
	return func(t *FTMSTransport) { t.logger = logger }
}

func NewFTMSTransport(class telemetry.DeviceClass, opts ...FTMSOption) *FTMSTransport {
	t := &FTMSTransport{
		adapter:     bluetooth.DefaultAdapter,
		class:       class,
		scanTimeout: defaultScanTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FTMSTransport) DeviceClass() telemetry.DeviceClass { return t.class }

func (t *FTMSTransport) dataCharUUID() bluetooth.UUID {
	if t.class == telemetry.DeviceRow {
		return rowerDataChar
	}
	return indoorBikeDataChar
}

// Start scans for a fitness machine, connects, and enables notifications on
// the data characteristic for the transport's device class.
func (t *FTMSTransport) Start(ctx context.Context, h FrameHandler) error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE adapter: %w", err)
	}

	result, err := t.scan(ctx)
	if err != nil {
		return err
	}
	t.logger.Info("fitness machine found",
		zap.String("name", result.LocalName()),
		zap.String("address", result.Address.String()))

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", result.Address, err)
	}
	t.device = device

	services, err := device.DiscoverServices([]bluetooth.UUID{fitnessMachineService})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("discover fitness machine service: %w", err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{t.dataCharUUID()})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("discover %s data characteristic: %w", t.class, err)
	}
	t.char = chars[0]

	if err := t.char.EnableNotifications(func(buf []byte) {
		// The stack may reuse buf after the callback returns.
		frame := make([]byte, len(buf))
		copy(frame, buf)
		h(frame)
	}); err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("enable notifications: %w", err)
	}

	t.logger.Info("subscribed to machine data",
		zap.Stringer("device_class", t.class))
	return nil
}

func (t *FTMSTransport) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(fitnessMachineService) {
				return
			}
			if t.namePrefix != "" && !strings.HasPrefix(result.LocalName(), t.namePrefix) {
				return
			}
			select {
			case found <- result:
			default:
			}
			_ = adapter.StopScan()
		})
		if err != nil {
			scanErr <- err
		}
	}()

	timer := time.NewTimer(t.scanTimeout)
	defer timer.Stop()

	select {
	case result := <-found:
		return result, nil
	case err := <-scanErr:
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	case <-timer.C:
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, fmt.Errorf("no fitness machine found within %s", t.scanTimeout)
	case <-ctx.Done():
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

// Close disables notifications and disconnects from the machine.
func (t *FTMSTransport) Close() error {
	_ = t.char.EnableNotifications(nil)
	return t.device.Disconnect()
}

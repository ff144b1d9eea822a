// Package ble connects to a fitness machine over Bluetooth Low Energy and
// delivers its raw notification frames to a handler.
package ble

import (
	"context"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

// FrameHandler receives one raw characteristic notification per call. It is
// invoked from the transport's notification goroutine and must not block.
type FrameHandler func(raw []byte)

// Transport is a source of raw fitness machine frames. Implementations
// deliver frames until the context is cancelled or Close is called.
type Transport interface {
	// Start connects to the machine and begins delivering frames to h.
	// It returns once the subscription is established.
	Start(ctx context.Context, h FrameHandler) error
	// DeviceClass reports which frame layout the transport produces.
	DeviceClass() telemetry.DeviceClass
	Close() error
}

// Package bus adapts a physical CAN transport (socketCAN or a serial
// bridge) to the fixed-length frame interfaces the isotp and dbc packages
// expect, and runs a periodic health check against it.
package bus

import (
	"fmt"

	"candiag/internal/canframe"
)

// Frame is a received CAN frame, decoupled from any particular driver's
// wire representation.
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [canframe.MaxDataLen]byte
}

// Listener receives frames off the bus as they arrive.
type Listener interface {
	Handle(f Frame)
}

// Driver is the minimal operation set a physical CAN transport must offer:
// send an 8-byte frame, subscribe to inbound frames, and tear down.
type Driver interface {
	Send(id uint32, data [canframe.MaxDataLen]byte) error
	Subscribe(l Listener)
	Close() error
}

// Config selects and parameterizes one Driver implementation, following the
// same Type-switch factory shape as the host daemon's transport config.
type Config struct {
	Type     string // "socketcan", "serial", or "tcp"
	Address  string // interface name (socketcan), device path (serial), or host:port (tcp)
	BaudRate int    // serial only
	Debug    bool
}

// New constructs the Driver named by cfg.Type.
func New(cfg Config) (Driver, error) {
	switch cfg.Type {
	case "socketcan":
		return newSocketCANDriver(cfg.Address)
	case "serial":
		return newSerialDriver(cfg.Address, cfg.BaudRate)
	case "tcp":
		return newTCPDriver(cfg.Address)
	default:
		return nil, fmt.Errorf("bus: unsupported driver type: %s", cfg.Type)
	}
}

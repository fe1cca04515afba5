package bus

import (
	"encoding/binary"
	"io"

	"github.com/tarm/serial"

	"candiag/internal/canframe"
)

// frameWireSize is a fixed-size binary record for one CAN frame over the
// serial bridge: 4-byte big-endian ID, 1-byte DLC, 8 data bytes.
const frameWireSize = 4 + 1 + canframe.MaxDataLen

// serialDriver bridges a CAN adapter reachable only over a serial link
// (e.g. an ELM-style or custom USB-CAN bridge), framing each direction as
// fixed-size binary records rather than a text protocol.
type serialDriver struct {
	port     *serial.Port
	listener Listener
	done     chan struct{}
}

func newSerialDriver(portName string, baud int) (Driver, error) {
	cfg := &serial.Config{Name: portName, Baud: baud}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	d := &serialDriver{port: port, done: make(chan struct{})}
	go d.readLoop()
	return d, nil
}

func (d *serialDriver) Subscribe(l Listener) { d.listener = l }

func (d *serialDriver) Send(id uint32, data [canframe.MaxDataLen]byte) error {
	var wire [frameWireSize]byte
	binary.BigEndian.PutUint32(wire[0:4], id)
	wire[4] = canframe.MaxDataLen
	copy(wire[5:], data[:])
	_, err := d.port.Write(wire[:])
	return err
}

func (d *serialDriver) readLoop() {
	var wire [frameWireSize]byte
	for {
		select {
		case <-d.done:
			return
		default:
		}
		if _, err := io.ReadFull(d.port, wire[:]); err != nil {
			return
		}
		if d.listener == nil {
			continue
		}
		id := binary.BigEndian.Uint32(wire[0:4])
		dlc := wire[4]
		var data [canframe.MaxDataLen]byte
		copy(data[:], wire[5:])
		d.listener.Handle(Frame{ID: id, DLC: dlc, Data: data})
	}
}

func (d *serialDriver) Close() error {
	close(d.done)
	return d.port.Close()
}

package bus

import (
	"encoding/binary"
	"io"
	"net"

	"candiag/internal/canframe"
)

// tcpDriver bridges a CAN interface reachable over a plain TCP socket (e.g.
// the frame simulator in testing/simulator, or a network-attached CAN
// gateway), using the same fixed-size binary record as the serial driver so
// both share one wire format and one test harness.
type tcpDriver struct {
	conn     net.Conn
	listener Listener
	done     chan struct{}
}

func newTCPDriver(address string) (Driver, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	d := &tcpDriver{conn: conn, done: make(chan struct{})}
	go d.readLoop()
	return d, nil
}

func (d *tcpDriver) Subscribe(l Listener) { d.listener = l }

func (d *tcpDriver) Send(id uint32, data [canframe.MaxDataLen]byte) error {
	var wire [frameWireSize]byte
	binary.BigEndian.PutUint32(wire[0:4], id)
	wire[4] = canframe.MaxDataLen
	copy(wire[5:], data[:])
	_, err := d.conn.Write(wire[:])
	return err
}

func (d *tcpDriver) readLoop() {
	var wire [frameWireSize]byte
	for {
		select {
		case <-d.done:
			return
		default:
		}
		if _, err := io.ReadFull(d.conn, wire[:]); err != nil {
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

func (d *tcpDriver) Close() error {
	close(d.done)
	return d.conn.Close()
}

package bus

import (
	sockcan "github.com/brutella/can"

	"candiag/internal/canframe"
)

// socketCANDriver wraps brutella/can's Bus for a native Linux SocketCAN
// interface, adapted from the socketCAN bus wrapper pattern used elsewhere
// in the ecosystem for exactly this library.
type socketCANDriver struct {
	bus      *sockcan.Bus
	listener Listener
}

func newSocketCANDriver(ifaceName string) (Driver, error) {
	b, err := sockcan.NewBusForInterfaceWithName(ifaceName)
	if err != nil {
		return nil, err
	}
	d := &socketCANDriver{bus: b}
	b.Subscribe(d)
	go b.ConnectAndPublish()
	return d, nil
}

// Handle implements brutella/can's frame-handler interface.
func (d *socketCANDriver) Handle(f sockcan.Frame) {
	if d.listener == nil {
		return
	}
	var data [canframe.MaxDataLen]byte
	copy(data[:], f.Data[:])
	d.listener.Handle(Frame{ID: f.ID, DLC: f.Length, Data: data})
}

func (d *socketCANDriver) Subscribe(l Listener) { d.listener = l }

func (d *socketCANDriver) Send(id uint32, data [canframe.MaxDataLen]byte) error {
	return d.bus.Publish(sockcan.Frame{
		ID:     id,
		Length: uint8(len(data)),
		Data:   data,
	})
}

func (d *socketCANDriver) Close() error {
	return d.bus.Disconnect()
}

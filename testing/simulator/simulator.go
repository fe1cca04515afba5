// Package simulator generates synthetic CAN traffic for exercising the
// dispatch loop without a physical bus: the eleven BASE0-BASE10 broadcast
// messages, random-walked within plausible engine-running ranges, framed in
// the same fixed-size binary wire record internal/bus's serial and tcp
// drivers read.
package simulator

import (
	"encoding/binary"
	"math/rand"
	"time"

	"candiag/internal/dbc"
)

// frameWireSize mirrors internal/bus's wire record: 4-byte big-endian ID,
// 1-byte DLC, 8 data bytes.
const frameWireSize = 4 + 1 + 8

// state holds the simulated engine signals that feed every broadcast
// message's Encode call.
type state struct {
	rpm         float64
	vehicleSpeed float64
	coolantTemp float64
	map_        float64
	battVolt    float64
	knock       float64
}

// DataWriter allows the simulator to target different transport
// implementations (serial port, TCP connection) uniformly.
type DataWriter interface {
	Write([]byte) (int, error)
	Close() error
}

// Simulator drives one synthetic ECU's broadcast traffic over a DataWriter.
type Simulator struct {
	state    state
	writer   DataWriter
	interval time.Duration
	done     chan struct{}
}

// NewSimulator creates a new simulator instance.
func NewSimulator(writer DataWriter, interval time.Duration) *Simulator {
	return &Simulator{
		state: state{
			rpm:          800,
			vehicleSpeed: 0,
			coolantTemp:  70,
			map_:         30,
			battVolt:     138,
			knock:        0,
		},
		writer:   writer,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the simulation loop, sending one broadcast message per tick,
// rotating across all eleven identifiers. Returns when Stop is called or a
// write fails.
func (s *Simulator) Start() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ids := []uint32{
		dbc.MsgBase0, dbc.MsgBase1, dbc.MsgBase2, dbc.MsgBase3, dbc.MsgBase4,
		dbc.MsgBase5, dbc.MsgBase6, dbc.MsgBase7, dbc.MsgBase8, dbc.MsgBase9, dbc.MsgBase10,
	}
	i := 0

	for {
		select {
		case <-ticker.C:
			s.updateState()
			id := ids[i%len(ids)]
			i++
			frame, ok := s.encodeFrame(id)
			if !ok {
				continue
			}
			if _, err := s.writer.Write(frame); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Stop halts the simulation and closes the underlying writer.
func (s *Simulator) Stop() {
	close(s.done)
	s.writer.Close()
}

func (s *Simulator) updateState() {
	s.state.rpm += (rand.Float64() - 0.5) * 150
	if s.state.rpm < 700 {
		s.state.rpm = 700
	}
	if s.state.rpm > 6500 {
		s.state.rpm = 6500
	}

	s.state.vehicleSpeed += (rand.Float64() - 0.5) * 3
	if s.state.vehicleSpeed < 0 {
		s.state.vehicleSpeed = 0
	}
	if s.state.vehicleSpeed > 180 {
		s.state.vehicleSpeed = 180
	}

	s.state.coolantTemp += (rand.Float64() - 0.5) * 0.5
	if s.state.coolantTemp < 60 {
		s.state.coolantTemp = 60
	}
	if s.state.coolantTemp > 105 {
		s.state.coolantTemp = 105
	}

	s.state.map_ = 25 + rand.Float64()*75
	s.state.battVolt = 132 + rand.Float64()*10
	if rand.Float64() < 0.02 {
		s.state.knock = rand.Float64() * 5
	} else {
		s.state.knock = 0
	}
}

// encodeFrame builds the wire-format record for one broadcast identifier
// from the current simulated state.
func (s *Simulator) encodeFrame(id uint32) ([]byte, bool) {
	values := map[string]float64{
		"RPM":          s.state.rpm,
		"VehicleSpeed": s.state.vehicleSpeed,
		"CoolantTemp":  s.state.coolantTemp,
		"MAP":          s.state.map_,
		"BattVolt":     s.state.battVolt,
		"knock0":       s.state.knock,
	}

	payload, ok := dbc.Encode(id, values)
	if !ok {
		return nil, false
	}

	wire := make([]byte, frameWireSize)
	binary.BigEndian.PutUint32(wire[0:4], id)
	wire[4] = 8
	copy(wire[5:], payload)
	return wire, true
}

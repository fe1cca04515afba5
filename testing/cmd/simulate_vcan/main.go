// Command simulate_vcan emits the eleven BASE0-BASE10 broadcast messages
// onto a virtual CAN interface (vcan0 by default), for exercising the
// socketCAN bus driver and dispatch loop end to end without hardware.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/go-daq/canbus"

	"candiag/internal/dbc"
)

type state struct {
	rpm          float64
	vehicleSpeed float64
	coolantTemp  float64
	mapKPa       float64
	battVolt     float64
	knock        float64
}

func (s *state) step() {
	s.rpm += (rand.Float64() - 0.5) * 150
	if s.rpm < 700 {
		s.rpm = 700
	}
	if s.rpm > 6500 {
		s.rpm = 6500
	}

	s.vehicleSpeed += (rand.Float64() - 0.5) * 3
	if s.vehicleSpeed < 0 {
		s.vehicleSpeed = 0
	}
	if s.vehicleSpeed > 180 {
		s.vehicleSpeed = 180
	}

	s.coolantTemp += (rand.Float64() - 0.5) * 0.5
	if s.coolantTemp < 60 {
		s.coolantTemp = 60
	}
	if s.coolantTemp > 105 {
		s.coolantTemp = 105
	}

	s.mapKPa = 25 + rand.Float64()*75
	s.battVolt = 132 + rand.Float64()*10
	if rand.Float64() < 0.02 {
		s.knock = rand.Float64() * 5
	} else {
		s.knock = 0
	}
}

func (s *state) values() map[string]float64 {
	return map[string]float64{
		"RPM":          s.rpm,
		"VehicleSpeed": s.vehicleSpeed,
		"CoolantTemp":  s.coolantTemp,
		"MAP":          s.mapKPa,
		"BattVolt":     s.battVolt,
		"knock0":       s.knock,
	}
}

func main() {
	iface := flag.String("iface", "vcan0", "virtual CAN interface to bind")
	period := flag.Duration("period", 100*time.Millisecond, "interval between frames")
	flag.Parse()

	send, err := canbus.New()
	if err != nil {
		log.Fatal(err)
	}
	defer send.Close()

	if err := send.Bind(*iface); err != nil {
		log.Fatalf("could not bind send socket: %+v", err)
	}

	ids := []uint32{
		dbc.MsgBase0, dbc.MsgBase1, dbc.MsgBase2, dbc.MsgBase3, dbc.MsgBase4,
		dbc.MsgBase5, dbc.MsgBase6, dbc.MsgBase7, dbc.MsgBase8, dbc.MsgBase9, dbc.MsgBase10,
	}

	var s state
	ticker := time.NewTicker(*period)
	defer ticker.Stop()

	i := 0
	for range ticker.C {
		s.step()
		id := ids[i%len(ids)]
		i++

		payload, ok := dbc.Encode(id, s.values())
		if !ok {
			continue
		}

		frame := canbus.Frame{ID: id, Data: payload, Kind: canbus.SFF}
		if _, err := send.Send(frame); err != nil {
			log.Printf("error sending frame %d: %v", id, err)
		}
	}
}

// Command candiag is the host daemon: it opens a CAN bus driver, wires the
// ISO-TP/UDS/scheduler/logger stack through internal/dispatch, persists
// session and signal data through internal/datastore, and serves a live
// status/websocket surface through internal/httpapi.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candiag/internal/bus"
	"candiag/internal/config"
	"candiag/internal/csvlog"
	"candiag/internal/datastore"
	"candiag/internal/dbc"
	"candiag/internal/dispatch"
	"candiag/internal/httpapi"
	"candiag/internal/isotp"
	"candiag/internal/scheduler"
	"candiag/internal/uds"
)

// variables is the compiled EPIC variable table: hash id, human-readable
// name, and the UDS DID it's read through. Grounded on the original
// firmware's named variable list.
var variables = []scheduler.Variable{
	{ID: 1272048601, Name: "TPSValue", DID: 0xF190},
	{ID: 1699696209, Name: "RPMValue", DID: 0xF191},
	{ID: -1093429509, Name: "AFRValue", DID: 0xF192},
}

var didMap = []uds.DIDEntry{
	{DID: 0xF190, VarID: 1272048601},
	{DID: 0xF191, VarID: 1699696209},
	{DID: 0xF192, VarID: -1093429509},
}

// loggingResetter logs ECU reset requests; the daemon has nothing physical
// to reset, unlike the firmware target this stack was ported from.
type loggingResetter struct{}

func (loggingResetter) RequestReset(hard bool) {
	log.Printf("dispatch: ECU reset requested (hard=%v)", hard)
}

// loggingErrorSink logs every ISO-TP transport error using the firmware's
// original short description text.
type loggingErrorSink struct{}

func (loggingErrorSink) OnTransportError(err isotp.TransportError) {
	log.Printf("isotp: %s", err.Error())
}

// storeBroadcastSink fans decoded broadcast signals out to the time-series
// store; paired with httpapi.Server via a multiSink so both see every frame.
type storeBroadcastSink struct {
	store datastore.Store
	ecuID uint32
}

func (s storeBroadcastSink) OnBroadcast(msg dbc.DecodedMessage) {
	now := time.Now()
	for name, value := range msg.Values {
		point := &datastore.SignalPoint{Timestamp: now, MessageID: msg.ID, Signal: name, Value: value}
		if err := s.store.SaveSignalPoint(s.ecuID, point); err != nil {
			log.Printf("datastore: save signal point: %v", err)
		}
	}
}

// multiSink fans one decoded broadcast message out to several sinks.
type multiSink []dispatch.BroadcastSink

func (m multiSink) OnBroadcast(msg dbc.DecodedMessage) {
	for _, s := range m {
		s.OnBroadcast(msg)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to daemon configuration file")
	ecuConfigPath := flag.String("ecu-config", "ecu_config.json", "path to the mirrored ECU configuration record")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("candiag: %v", err)
	}

	driver, err := bus.New(cfg.BusConfig())
	if err != nil {
		log.Fatalf("candiag: open bus: %v", err)
	}
	defer driver.Close()

	store, err := datastore.NewStore(&datastore.Config{
		SQLitePath:     cfg.Datastore.SQLite.Path,
		InfluxDBURL:    cfg.Datastore.InfluxDB.URL,
		InfluxDBOrg:    cfg.Datastore.InfluxDB.Org,
		InfluxDBToken:  cfg.Datastore.InfluxDB.Token,
		InfluxDBBucket: cfg.Datastore.InfluxDB.Bucket,
	})
	if err != nil {
		log.Fatalf("candiag: open datastore: %v", err)
	}
	defer store.Close()

	api := httpapi.NewServer(store, nil, cfg.Diagnostics.ECUID)

	ecuStore, err := openECUConfigStore(*ecuConfigPath)
	if err != nil {
		log.Fatalf("candiag: %v", err)
	}
	api.SetECUConfigStore(ecuStore)

	logFile, err := os.OpenFile(fmt.Sprintf("%s/session.csv", cfg.Logging.Directory), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("candiag: open log file: %v", err)
	}
	defer logFile.Close()

	loop := dispatch.New(dispatch.Options{
		Driver:   driver,
		Vars:     variables,
		DIDMap:   didMap,
		Resetter: loggingResetter{},
		DestID:   cfg.Diagnostics.ECUID,
		LocalID:  cfg.Diagnostics.ECUID,
		LogOpts:  csvlog.Options{Sequence: cfg.Logging.Sequence, Checksum: cfg.Logging.Checksum},
		LogSink:  logFile,
		Broadcast: multiSink{
			api,
			storeBroadcastSink{store: store, ecuID: cfg.Diagnostics.ECUID},
		},
		ErrorSink:     loggingErrorSink{},
		RequestPeriod: time.Duration(cfg.Diagnostics.RequestMS) * time.Millisecond,
		MaxPending:    cfg.Diagnostics.MaxPending,
	})
	api.SetSignalProvider(loop)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := api.ListenAndServe(addr); err != nil {
			log.Fatalf("candiag: http server: %v", err)
		}
	}()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go loop.Run(stop)

	<-sig
	log.Println("candiag: shutting down")
	close(stop)
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("candiag: %s not found, using defaults", path)
		c := config.Default()
		return &c, nil
	}
	return config.Load(path)
}

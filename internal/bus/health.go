package bus

import (
	"context"
	"log"
	"time"

	"candiag/internal/canframe"
)

const healthCheckInterval = 30 * time.Second

// healthCheckID is an otherwise-unused arbitration ID used as a bus-liveness
// probe; no ECU is expected to answer it.
const healthCheckID = 0x7FF

// Monitor periodically sends a test frame on the bus and logs when the send
// fails, giving operators early warning of a wedged or disconnected
// transport rather than silent data loss.
type Monitor struct {
	driver Driver
	logger *log.Logger
}

// NewMonitor constructs a Monitor over driver, logging through logger.
func NewMonitor(driver Driver, logger *log.Logger) *Monitor {
	return &Monitor{driver: driver, logger: logger}
}

// Run blocks, sending a health-check frame every healthCheckInterval until
// ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.probe(); err != nil {
				m.logger.Printf("bus health check failed: %v", err)
			}
		}
	}
}

func (m *Monitor) probe() error {
	var data [canframe.MaxDataLen]byte
	return m.driver.Send(healthCheckID, data)
}

package events

import (
	"github.com/DataDog/datadog-go/v5/statsd"
)

// NewMeter creates the statsd client used for event metering. An empty
// address yields a no-op client so unconfigured deployments still work.
func NewMeter(addr string) (statsd.ClientInterface, error) {
	if addr == "" {
		return &statsd.NoOpClient{}, nil
	}
	return statsd.New(addr)
}

// Package bus provides the event bus implementations behind analysis
// lifecycle events: completed analyses, opportunity alerts and record
// ingests.
package bus

import (
	"fmt"

	"github.com/gavelhq/gavel/internal/domain"
)

// New selects the bus implementation from configuration. Community
// deployments run in-process channels; Pro deployments run NATS.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

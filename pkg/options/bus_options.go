package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*BusOptions)(nil)

// BusOptions selects the transport behind the response event bus.
type BusOptions struct {
	// Driver is "memory" for a single process or "mqtt" to share events across replicas.
	Driver string `json:"driver" mapstructure:"driver"`

	// BufferSize is the per-subscriber event queue length.
	BufferSize int `json:"buffer-size" mapstructure:"buffer-size"`

	// QoS is the MQTT quality of service used by the mqtt driver.
	QoS int `json:"qos" mapstructure:"qos"`
}

func NewBusOptions() *BusOptions {
	return &BusOptions{
		Driver:     "memory",
		BufferSize: 64,
		QoS:        1,
	}
}

func (o *BusOptions) Validate() []error {
	errors := []error{}

	if o.Driver != "memory" && o.Driver != "mqtt" {
		errors = append(errors, fmt.Errorf("--bus.driver %q is not supported (memory, mqtt)", o.Driver))
	}
	if o.BufferSize < 1 {
		errors = append(errors, fmt.Errorf("--bus.buffer-size must be at least 1"))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errors = append(errors, fmt.Errorf("--bus.qos must be 0, 1 or 2"))
	}

	return errors
}

func (o *BusOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "bus.driver", o.Driver, "Event bus transport: memory or mqtt.")
	fs.IntVar(&o.BufferSize, "bus.buffer-size", o.BufferSize, "Per-subscriber event buffer length.")
	fs.IntVar(&o.QoS, "bus.qos", o.QoS, "MQTT QoS for the mqtt bus driver.")
}

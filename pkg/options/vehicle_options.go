package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VehicleOptions)(nil)

// VehicleOptions configures the outbound connection to the vehicle gateway.
type VehicleOptions struct {
	// Endpoint is the host:port of the vehicle gRPC service.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`

	// TLS enables mutual TLS. Certificate material is read from CertDir.
	TLS bool `json:"tls" mapstructure:"tls"`

	// CertDir holds client.crt, client.key and ca.crt.
	CertDir string `json:"cert-dir" mapstructure:"cert-dir"`

	// Timeout bounds a single streaming attempt.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `json:"max-attempts" mapstructure:"max-attempts"`

	// BackoffBase is multiplied by 2^attempt between retries.
	BackoffBase time.Duration `json:"backoff-base" mapstructure:"backoff-base"`

	// KeepAlive is the client keepalive ping interval. Zero disables it.
	KeepAlive time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
}

// NewVehicleOptions creates VehicleOptions with default values.
func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{
		Endpoint:    "localhost:50051",
		CertDir:     "/etc/sovd/certs",
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		KeepAlive:   30 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *VehicleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Endpoint); err != nil {
		errors = append(errors, err)
	}
	if o.Timeout <= 0 {
		errors = append(errors, fmt.Errorf("--vehicle.timeout must be positive"))
	}
	if o.MaxAttempts < 1 {
		errors = append(errors, fmt.Errorf("--vehicle.max-attempts must be at least 1"))
	}
	if o.BackoffBase < 0 {
		errors = append(errors, fmt.Errorf("--vehicle.backoff-base cannot be negative"))
	}
	if o.TLS && o.CertDir == "" {
		errors = append(errors, fmt.Errorf("--vehicle.cert-dir is required when --vehicle.tls is set"))
	}

	return errors
}

// AddFlags adds flags for VehicleOptions to the specified FlagSet.
func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "vehicle.endpoint", o.Endpoint, "Address (host:port) of the vehicle gRPC gateway.")
	fs.BoolVar(&o.TLS, "vehicle.tls", o.TLS, "Use mutual TLS towards the vehicle gateway.")
	fs.StringVar(&o.CertDir, "vehicle.cert-dir", o.CertDir, "Directory containing client.crt, client.key and ca.crt.")
	fs.DurationVar(&o.Timeout, "vehicle.timeout", o.Timeout, "Timeout for a single command execution attempt.")
	fs.IntVar(&o.MaxAttempts, "vehicle.max-attempts", o.MaxAttempts, "Maximum number of attempts for transient failures.")
	fs.DurationVar(&o.BackoffBase, "vehicle.backoff-base", o.BackoffBase, "Base delay for exponential retry backoff.")
	fs.DurationVar(&o.KeepAlive, "vehicle.keep-alive", o.KeepAlive, "Client keepalive ping interval (0 disables).")
}

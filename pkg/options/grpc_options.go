package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*GrpcOptions)(nil)

// GrpcOptions configures the listening side of the vehicle gRPC service.
type GrpcOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ChunkInterval is the pause between two streamed response chunks.
	ChunkInterval time.Duration `json:"chunk-interval" mapstructure:"chunk-interval"`

	// MaxStreamDuration caps a stream whose caller sent no deadline.
	MaxStreamDuration time.Duration `json:"max-stream-duration" mapstructure:"max-stream-duration"`

	// CertDir holds server.crt, server.key and ca.crt when mutual TLS is enabled.
	CertDir string `json:"cert-dir" mapstructure:"cert-dir"`

	// TLS enables mutual TLS on the listener.
	TLS bool `json:"tls" mapstructure:"tls"`
}

// NewGrpcOptions returns GrpcOptions with plaintext defaults.
func NewGrpcOptions() *GrpcOptions {
	return &GrpcOptions{
		Network:           "tcp",
		Addr:              "0.0.0.0:50051",
		ChunkInterval:     100 * time.Millisecond,
		MaxStreamDuration: 5 * time.Minute,
		CertDir:           "/etc/sovd/certs",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *GrpcOptions) Validate() []error {
	var errors []error

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}
	if o.MaxStreamDuration < 0 {
		errors = append(errors, fmt.Errorf("--grpc.max-stream-duration must not be negative"))
	}

	return errors
}

// AddFlags adds flags related to the gRPC listener to the specified FlagSet.
func (o *GrpcOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "grpc.network", o.Network, "Specify the network for the gRPC server.")
	fs.StringVar(&o.Addr, "grpc.addr", o.Addr, "Specify the gRPC server bind address and port.")
	fs.DurationVar(&o.ChunkInterval, "grpc.chunk-interval", o.ChunkInterval, "Delay between streamed response chunks.")
	fs.DurationVar(&o.MaxStreamDuration, "grpc.max-stream-duration", o.MaxStreamDuration, "Upper bound for a stream whose caller sent no deadline.")
	fs.BoolVar(&o.TLS, "grpc.tls", o.TLS, "Require mutual TLS from connecting clients.")
	fs.StringVar(&o.CertDir, "grpc.cert-dir", o.CertDir, "Directory containing server.crt, server.key and ca.crt.")
}

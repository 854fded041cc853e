package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/app"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

type ServerOptions struct {
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	VehicleOptions *options.VehicleOptions `json:"vehicle" mapstructure:"vehicle"`
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	BusOptions     *options.BusOptions     `json:"bus" mapstructure:"bus"`
	DBOptions      *options.DBOptions      `json:"db" mapstructure:"db"`
	JWTOptions     *options.JWTOptions     `json:"jwt" mapstructure:"jwt"`
	S3Options      *options.S3Options      `json:"s3" mapstructure:"s3"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ServerOptions)(nil)

func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HttpOptions:    options.NewHttpOptions(),
		VehicleOptions: options.NewVehicleOptions(),
		MqttOptions:    options.NewMqttOptions(),
		BusOptions:     options.NewBusOptions(),
		DBOptions:      options.NewDBOptions(),
		JWTOptions:     options.NewJWTOptions(),
		S3Options:      options.NewS3Options(),
		Log:            log.NewOptions(),
	}
}

func (o *ServerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.VehicleOptions.AddFlags(fss.FlagSet("vehicle"))
	o.BusOptions.AddFlags(fss.FlagSet("bus"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.DBOptions.AddFlags(fss.FlagSet("db"))
	o.JWTOptions.AddFlags(fss.FlagSet("jwt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ServerOptions) Complete() error {
	return nil
}

func (o *ServerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.VehicleOptions.Validate()...)
	errs = append(errs, o.BusOptions.Validate()...)
	if o.BusOptions.Driver == "mqtt" {
		errs = append(errs, o.MqttOptions.Validate()...)
	}
	errs = append(errs, o.DBOptions.Validate()...)
	errs = append(errs, o.JWTOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ServerOptions) Config() (*sovd.Config, error) {
	return &sovd.Config{
		HttpOptions:    o.HttpOptions,
		VehicleOptions: o.VehicleOptions,
		MqttOptions:    o.MqttOptions,
		BusOptions:     o.BusOptions,
		DBOptions:      o.DBOptions,
		JWTOptions:     o.JWTOptions,
		S3Options:      o.S3Options,
	}, nil
}

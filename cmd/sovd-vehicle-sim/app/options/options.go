package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/aman-2709/vehicle-sovd-sub000/pkg/app"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

type SimOptions struct {
	GrpcOptions *options.GrpcOptions `json:"grpc" mapstructure:"grpc"`
	Log         *log.Options         `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*SimOptions)(nil)

func NewSimOptions() *SimOptions {
	return &SimOptions{
		GrpcOptions: options.NewGrpcOptions(),
		Log:         log.NewOptions(),
	}
}

func (o *SimOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *SimOptions) Complete() error {
	return nil
}

func (o *SimOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

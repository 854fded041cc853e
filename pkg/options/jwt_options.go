package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*JWTOptions)(nil)

// JWTOptions configures bearer token verification.
type JWTOptions struct {
	// Secret is the HS256 signing key shared with the token issuer.
	Secret string `json:"secret" mapstructure:"secret"`

	// Issuer, when set, must match the "iss" claim.
	Issuer string `json:"issuer" mapstructure:"issuer"`

	// BootstrapAdmin is a user id created with the admin role at startup.
	BootstrapAdmin string `json:"bootstrap-admin" mapstructure:"bootstrap-admin"`
}

func NewJWTOptions() *JWTOptions {
	return &JWTOptions{}
}

func (o *JWTOptions) Validate() []error {
	errors := []error{}

	if len(o.Secret) < 16 {
		errors = append(errors, fmt.Errorf("--jwt.secret must be at least 16 bytes"))
	}

	return errors
}

func (o *JWTOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Secret, "jwt.secret", o.Secret, "HS256 secret used to verify bearer tokens.")
	fs.StringVar(&o.Issuer, "jwt.issuer", o.Issuer, "Expected token issuer (empty accepts any).")
	fs.StringVar(&o.BootstrapAdmin, "jwt.bootstrap-admin", o.BootstrapAdmin, "User id to create as an active admin at startup.")
}

package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DBOptions)(nil)

// DBOptions configures the relational store.
type DBOptions struct {
	// Driver is either "mysql" or "sqlite".
	Driver string `json:"driver" mapstructure:"driver"`

	// DSN is passed to the driver unchanged, e.g.
	// "user:pass@tcp(host:3306)/sovd?parseTime=true" or "file:sovd.db".
	DSN string `json:"dsn" mapstructure:"dsn"`

	MaxOpenConns    int           `json:"max-open-conns" mapstructure:"max-open-conns"`
	MaxIdleConns    int           `json:"max-idle-conns" mapstructure:"max-idle-conns"`
	ConnMaxLifetime time.Duration `json:"conn-max-lifetime" mapstructure:"conn-max-lifetime"`

	// AutoMigrate creates or updates the schema at startup.
	AutoMigrate bool `json:"auto-migrate" mapstructure:"auto-migrate"`

	// LogLevel is the gorm logger level: silent, error, warn or info.
	LogLevel string `json:"log-level" mapstructure:"log-level"`
}

// NewDBOptions creates DBOptions with default values.
func NewDBOptions() *DBOptions {
	return &DBOptions{
		Driver:          "sqlite",
		DSN:             "file:sovd.db?_foreign_keys=on",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
		LogLevel:        "silent",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DBOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Driver {
	case "mysql", "sqlite":
	default:
		errors = append(errors, fmt.Errorf("--db.driver %q is not supported (mysql, sqlite)", o.Driver))
	}
	if o.DSN == "" {
		errors = append(errors, fmt.Errorf("--db.dsn cannot be empty"))
	}
	switch o.LogLevel {
	case "silent", "error", "warn", "info":
	default:
		errors = append(errors, fmt.Errorf("--db.log-level %q is not supported", o.LogLevel))
	}

	return errors
}

// AddFlags adds flags for DBOptions to the specified FlagSet.
func (o *DBOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "db.driver", o.Driver, "Database driver: mysql or sqlite.")
	fs.StringVar(&o.DSN, "db.dsn", o.DSN, "Data source name passed to the database driver.")
	fs.IntVar(&o.MaxOpenConns, "db.max-open-conns", o.MaxOpenConns, "Maximum number of open database connections.")
	fs.IntVar(&o.MaxIdleConns, "db.max-idle-conns", o.MaxIdleConns, "Maximum number of idle database connections.")
	fs.DurationVar(&o.ConnMaxLifetime, "db.conn-max-lifetime", o.ConnMaxLifetime, "Maximum lifetime of a database connection.")
	fs.BoolVar(&o.AutoMigrate, "db.auto-migrate", o.AutoMigrate, "Create or update the schema at startup.")
	fs.StringVar(&o.LogLevel, "db.log-level", o.LogLevel, "SQL logger level: silent, error, warn or info.")
}

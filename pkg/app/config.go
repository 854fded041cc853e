package app

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

const configFlagName = "config"

var cfgFile string

// addConfigFlag registers --config on fs.
func addConfigFlag(v *viper.Viper, basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile,
		fmt.Sprintf("Read configuration from the specified YAML file (e.g. /etc/sovd/%s.yaml).", basename))
}

// loadConfig merges config file, environment and flags, then decodes them into opts.
// Precedence: explicitly set flag > environment > config file > flag default.
func loadConfig(v *viper.Viper, fs *pflag.FlagSet, envPrefix string, opts any) error {
	if f := fs.Lookup(configFlagName); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %q: %w", f.Value.String(), err)
		}
	}

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// watchConfig logs every change of the loaded config file. Changes take effect on restart.
func watchConfig(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, restart to apply", "file", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()
}

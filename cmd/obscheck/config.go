// Layered CLI settings: defaults, optional YAML config file, OBSCHECK_* environment, flags
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// settings are the resolved options for a replay run.
type settings struct {
	Endpoint  string `mapstructure:"endpoint"`
	Protocol  string `mapstructure:"protocol"`
	Stdout    bool   `mapstructure:"stdout"`
	Signals   string `mapstructure:"signals"`
	CallSites bool   `mapstructure:"callsites"`
	Record    string `mapstructure:"record"`
	Pyroscope string `mapstructure:"pyroscope"`
	JSON      bool   `mapstructure:"json"`
	Verbose   bool   `mapstructure:"verbose"`
}

// loadSettings resolves settings for fs. Precedence, highest first:
// changed flags, OBSCHECK_* variables, the config file, defaults.
func loadSettings(fs *pflag.FlagSet, configPath string) (settings, error) {
	v := viper.New()

	v.SetDefault("endpoint", "")
	v.SetDefault("protocol", "http/protobuf")
	v.SetDefault("stdout", false)
	v.SetDefault("signals", "")
	v.SetDefault("callsites", true)
	v.SetDefault("record", "")
	v.SetDefault("pyroscope", "")
	v.SetDefault("json", false)
	v.SetDefault("verbose", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("OBSCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	if bindErr != nil {
		return settings{}, fmt.Errorf("binding flags: %w", bindErr)
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return s, nil
}

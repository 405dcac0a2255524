package config

import (
	"github.com/spf13/viper"
	support "github.com/stellar/go/support/config"
	"github.com/stellar/go/support/errors"
)

// flags converts the options into cli flags, once per config.
func (cfg *Config) flags() support.ConfigOptions {
	if cfg.flagsCache == nil {
		var flags support.ConfigOptions
		for _, option := range cfg.options() {
			if option.Name == "" || option.Name == "-" {
				continue
			}
			flags = append(flags, option.flag())
		}
		cfg.flagsCache = &flags
	}
	return *cfg.flagsCache
}

func (o *ConfigOption) flag() *support.ConfigOption {
	return &support.ConfigOption{
		Name:        o.Name,
		EnvVar:      o.EnvVar,
		OptType:     o.OptType,
		FlagDefault: o.DefaultValue,
		Usage:       o.Usage,
		ConfigKey:   o.ConfigKey,
		CustomSetValue: func(flag *support.ConfigOption) error {
			if err := o.setValue(viper.Get(flag.Name)); err != nil {
				return errors.Wrapf(err, "unable to parse %s", flag.Name)
			}
			return nil
		},
	}
}

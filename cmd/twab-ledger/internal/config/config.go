package config

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	support "github.com/stellar/go/support/config"
	"github.com/stellar/go/support/errors"
)

// Config represents the configuration of the twab ledger
type Config struct {
	ConfigPath string

	Strict bool

	SQLiteDBPath         string
	DBBusyRetries        uint
	LogFormat            LogFormat
	LogLevel             logrus.Level
	MetricsTextfilePath  string
	IngestionTimeout     time.Duration
	MaxBatchLength       uint
	MaxRecordRangeLength uint

	ObservationCardinality             uint32
	DrawBufferCardinality              uint32
	PrizeDistributionBufferCardinality uint32
	Publisher                          common.Address

	// We memoize these, so they bind to viper flags correctly
	optionsCache *ConfigOptions
	flagsCache   *support.ConfigOptions
	viper        *viper.Viper
}

func (cfg *Config) Init(cmd *cobra.Command) error {
	return cfg.flags().Init(cmd)
}

// Bind attaches the config to the viper instance holding the cli flags and
// environment variables.
func (cfg *Config) Bind() {
	if cfg.viper == nil {
		cfg.viper = viper.GetViper()
	}
}

// SetValues fills the config from every source. Later sources win:
// defaults, then the config file, then env vars and cli flags.
func (cfg *Config) SetValues() error {
	if err := cfg.SetDefaults(); err != nil {
		return err
	}
	// The config path itself may come from a flag or an env var.
	if err := cfg.loadFlags(); err != nil {
		return err
	}
	if cfg.ConfigPath == "" {
		return nil
	}
	if err := cfg.loadConfigPath(); err != nil {
		return err
	}
	return cfg.loadFlags()
}

// SetDefaults resets every option to its default value.
func (cfg *Config) SetDefaults() error {
	for _, option := range cfg.options() {
		if option.DefaultValue == nil {
			continue
		}
		if err := option.setValue(option.DefaultValue); err != nil {
			return errors.Wrapf(err, "invalid default for %s", option.Name)
		}
	}
	return nil
}

// loadFlags applies the options given as cli flags or env vars.
func (cfg *Config) loadFlags() error {
	cfg.Bind()
	for _, option := range cfg.options() {
		if !cfg.viper.IsSet(option.Name) {
			continue
		}
		if err := option.setValue(cfg.viper.Get(option.Name)); err != nil {
			return errors.Wrapf(err, "invalid value for %s", option.Name)
		}
	}
	return nil
}

// loadConfigPath merges the toml file at ConfigPath into the config.
func (cfg *Config) loadConfigPath() error {
	file, err := os.Open(cfg.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "could not open config file")
	}
	defer file.Close()
	return parseToml(file, cfg.Strict, cfg)
}

// Validate checks the loaded values.
func (cfg *Config) Validate() error {
	return cfg.options().Validate()
}

package config

import (
	"fmt"
	"go/types"
	"math"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/support/errors"
)

const (
	envVarPrefix = "TWAB_LEDGER_"

	defaultObservationCardinality  = 32
	defaultRecordBufferCardinality = 256
	defaultMaxBatchLength          = 256
	defaultDBBusyRetries           = 5
	maxObservationCardinality      = math.MaxUint16
)

func (cfg *Config) options() ConfigOptions {
	if cfg.optionsCache != nil {
		return *cfg.optionsCache
	}
	defaultStrict := false
	options := ConfigOptions{
		{
			Name:         "config-path",
			TomlKey:      "-",
			Usage:        "File path to the toml configuration file",
			OptType:      types.String,
			ConfigKey:    &cfg.ConfigPath,
			DefaultValue: "",
		},
		{
			Name:         "config-strict",
			TomlKey:      "STRICT",
			Usage:        "Enable strict toml configuration file parsing",
			OptType:      types.Bool,
			ConfigKey:    &cfg.Strict,
			DefaultValue: defaultStrict,
		},
		{
			Name:         "db-path",
			Usage:        "SQLite DB path",
			OptType:      types.String,
			ConfigKey:    &cfg.SQLiteDBPath,
			DefaultValue: "twab_ledger.sqlite",
			Validate:     Required,
		},
		{
			Name:         "db-busy-retries",
			Usage:        "how many times a write is retried while the SQLite database is locked by another process",
			OptType:      types.Uint,
			ConfigKey:    &cfg.DBBusyRetries,
			DefaultValue: uint(defaultDBBusyRetries),
		},
		{
			Name:         "log-level",
			Usage:        "minimum log severity (debug, info, warn, error) to log",
			OptType:      types.String,
			ConfigKey:    &cfg.LogLevel,
			DefaultValue: logrus.InfoLevel.String(),
			CustomSetValue: func(option *ConfigOption, i interface{}) error {
				switch v := i.(type) {
				case nil:
					return nil
				case string:
					ll, err := logrus.ParseLevel(v)
					if err != nil {
						return fmt.Errorf("could not parse %s: %q", option.Name, v)
					}
					cfg.LogLevel = ll
				case logrus.Level:
					cfg.LogLevel = v
				case *logrus.Level:
					cfg.LogLevel = *v
				default:
					return fmt.Errorf("could not parse %s: %q", option.Name, v)
				}
				return nil
			},
			MarshalTOML: func(option *ConfigOption) (interface{}, error) {
				return cfg.LogLevel.String(), nil
			},
		},
		{
			Name:         "log-format",
			Usage:        "format used for output logs (json or text)",
			OptType:      types.String,
			ConfigKey:    &cfg.LogFormat,
			DefaultValue: LogFormatText.String(),
			CustomSetValue: func(option *ConfigOption, i interface{}) error {
				switch v := i.(type) {
				case nil:
					return nil
				case string:
					return errors.Wrapf(
						cfg.LogFormat.UnmarshalText([]byte(v)),
						"could not parse %s",
						option.Name,
					)
				case LogFormat:
					cfg.LogFormat = v
				case *LogFormat:
					cfg.LogFormat = *v
				default:
					return fmt.Errorf("could not parse %s: %q", option.Name, v)
				}
				return nil
			},
			MarshalTOML: func(_ *ConfigOption) (interface{}, error) {
				return cfg.LogFormat.String(), nil
			},
		},
		{
			Name:         "metrics-textfile-path",
			Usage:        "file the metrics registry is written to, in the prometheus text format, when a command exits. \"\" (default) disables it",
			OptType:      types.String,
			ConfigKey:    &cfg.MetricsTextfilePath,
			DefaultValue: "",
		},
		{
			Name:         "ingestion-timeout",
			Usage:        "maximum duration of the ingestion of an event stream, 0 (default) for no limit",
			OptType:      types.String,
			ConfigKey:    &cfg.IngestionTimeout,
			DefaultValue: "0s",
		},
		{
			Name:         "max-batch-length",
			Usage:        "maximum number of timestamps or windows accepted by a single batch query",
			OptType:      types.Uint,
			ConfigKey:    &cfg.MaxBatchLength,
			DefaultValue: uint(defaultMaxBatchLength),
			Validate:     positive,
		},
		{
			Name:         "max-record-range-length",
			Usage:        "maximum number of ids accepted by a single record range query",
			OptType:      types.Uint,
			ConfigKey:    &cfg.MaxRecordRangeLength,
			DefaultValue: uint(defaultMaxBatchLength),
			Validate:     positive,
		},
		{
			Name:         "observation-cardinality",
			Usage:        "number of observations retained per account, it cannot change once the database holds observations",
			OptType:      types.Uint32,
			ConfigKey:    &cfg.ObservationCardinality,
			DefaultValue: uint32(defaultObservationCardinality),
			Validate: func(option *ConfigOption) error {
				if cfg.ObservationCardinality < 2 || cfg.ObservationCardinality > maxObservationCardinality {
					return fmt.Errorf("%s must be between 2 and %d", option.Name, maxObservationCardinality)
				}
				return nil
			},
		},
		{
			Name:         "draw-buffer-cardinality",
			Usage:        "number of draws retained",
			OptType:      types.Uint32,
			ConfigKey:    &cfg.DrawBufferCardinality,
			DefaultValue: uint32(defaultRecordBufferCardinality),
			Validate:     positive,
		},
		{
			Name:         "prize-distribution-buffer-cardinality",
			Usage:        "number of prize distributions retained",
			OptType:      types.Uint32,
			ConfigKey:    &cfg.PrizeDistributionBufferCardinality,
			DefaultValue: uint32(defaultRecordBufferCardinality),
			Validate:     positive,
		},
		{
			Name:         "publisher",
			Usage:        "address allowed to push draws and prize distributions",
			OptType:      types.String,
			ConfigKey:    &cfg.Publisher,
			DefaultValue: common.Address{}.Hex(),
			CustomSetValue: func(option *ConfigOption, i interface{}) error {
				switch v := i.(type) {
				case nil:
					return nil
				case string:
					if !common.IsHexAddress(v) {
						return fmt.Errorf("could not parse %s: %q is not an address", option.Name, v)
					}
					cfg.Publisher = common.HexToAddress(v)
				case common.Address:
					cfg.Publisher = v
				default:
					return fmt.Errorf("could not parse %s: %v", option.Name, v)
				}
				return nil
			},
			MarshalTOML: func(_ *ConfigOption) (interface{}, error) {
				return cfg.Publisher.Hex(), nil
			},
		},
	}
	for _, option := range options {
		if option.EnvVar == "" {
			option.EnvVar = envVarPrefix + strings.ToUpper(strings.ReplaceAll(option.Name, "-", "_"))
		}
	}
	cfg.optionsCache = &options
	return options
}

func Required(option *ConfigOption) error {
	if !reflect.ValueOf(option.ConfigKey).Elem().IsZero() {
		return nil
	}

	waysToSet := []string{}
	if option.Name != "" && option.Name != "-" {
		waysToSet = append(waysToSet, fmt.Sprintf("specify --%s on the command line", option.Name))
	}
	if option.EnvVar != "" && option.EnvVar != "-" {
		waysToSet = append(waysToSet, fmt.Sprintf("set the %s environment variable", option.EnvVar))
	}
	if key, ok := option.getTomlKey(); ok {
		waysToSet = append(waysToSet, fmt.Sprintf("set %s in the config file", key))
	}

	advice := ""
	switch len(waysToSet) {
	case 1:
		advice = fmt.Sprintf(" Please %s.", waysToSet[0])
	case 2:
		advice = fmt.Sprintf(" Please %s or %s.", waysToSet[0], waysToSet[1])
	case 3:
		advice = fmt.Sprintf(" Please %s, %s, or %s.", waysToSet[0], waysToSet[1], waysToSet[2])
	}

	return fmt.Errorf("Invalid config: %s is required.%s", option.Name, advice)
}

func positive(option *ConfigOption) error {
	if reflect.ValueOf(option.ConfigKey).Elem().IsZero() {
		return fmt.Errorf("%s must be positive", option.Name)
	}
	return nil
}

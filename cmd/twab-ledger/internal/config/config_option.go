package config

import (
	"go/types"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/support/errors"
)

// ConfigOptions lists every option of a Config, in declaration order.
type ConfigOptions []*ConfigOption

// Validate runs the Validate hook of each option and stops at the first
// failure.
func (options ConfigOptions) Validate() error {
	for _, option := range options {
		if option.Validate == nil {
			continue
		}
		if err := option.Validate(option); err != nil {
			return errors.Wrapf(err, "Invalid config value for %s", option.Name)
		}
	}
	return nil
}

// ConfigOption is a complete description of the configuration of a command line option
type ConfigOption struct {
	Name           string                                 // e.g. "db-path"
	EnvVar         string                                 // e.g. "TWAB_LEDGER_DB_PATH". Defaults to the prefixed uppercase/underscore representation of name
	TomlKey        string                                 // e.g. "DB_PATH". Defaults to uppercase/underscore representation of name. - to omit from toml
	Usage          string                                 // Help text
	OptType        types.BasicKind                        // The type of this option, e.g. types.Bool
	DefaultValue   interface{}                            // A default if no option is provided. Omit or set to `nil` if no default
	ConfigKey      interface{}                            // Pointer to the final key in the linked Config struct
	CustomSetValue func(*ConfigOption, interface{}) error // Optional function for custom validation/transformation
	Validate       func(*ConfigOption) error              // Function called after loading all options, to validate the configuration
	MarshalTOML    func(*ConfigOption) (interface{}, error)
}

// Returns false if this option is omitted in the toml
func (o ConfigOption) getTomlKey() (string, bool) {
	if o.TomlKey == "-" || o.TomlKey == "_" {
		return "", false
	}
	if o.TomlKey != "" {
		return o.TomlKey, true
	}
	return strings.ToUpper(strings.ReplaceAll(o.Name, "-", "_")), true
}

// setValue stores i into ConfigKey. A nil value leaves the option untouched.
func (o *ConfigOption) setValue(i interface{}) error {
	if o.CustomSetValue != nil {
		return o.CustomSetValue(o, i)
	}
	if i == nil {
		return nil
	}
	parse, ok := parserFor(o.ConfigKey)
	if !ok {
		return errors.Errorf("option %s has an unsupported type %T", o.Name, o.ConfigKey)
	}
	return parse(o, i)
}

// isUnset reports whether the option still holds its zero value.
func (o *ConfigOption) isUnset() bool {
	return reflect.ValueOf(o.ConfigKey).Elem().IsZero()
}

func (o *ConfigOption) marshalTOML() (interface{}, error) {
	if o.MarshalTOML != nil {
		return o.MarshalTOML(o)
	}
	if d, ok := o.ConfigKey.(*time.Duration); ok {
		return d.String(), nil
	}
	value := reflect.ValueOf(o.ConfigKey).Elem()
	switch value.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// raw bytes are emitted verbatim by the encoder
		return []byte(strconv.FormatUint(value.Uint(), 10)), nil
	}
	return value.Interface(), nil
}

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/stellar/go/support/errors"
)

// valueParser stores i into the option's ConfigKey.
type valueParser func(option *ConfigOption, i interface{}) error

// parserFor picks the parser matching the type ConfigKey points to.
func parserFor(key interface{}) (valueParser, bool) {
	if _, ok := key.(*time.Duration); ok {
		return parseDuration, true
	}
	switch reflect.ValueOf(key).Elem().Kind() {
	case reflect.Bool:
		return parseBool, true
	case reflect.String:
		return parseString, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return parseUnsigned, true
	}
	return nil, false
}

func parseBool(option *ConfigOption, i interface{}) error {
	target := option.ConfigKey.(*bool)
	switch v := i.(type) {
	case bool:
		*target = v
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %q", option.Name, v)
		}
		*target = parsed
	default:
		return fmt.Errorf("%s expects a boolean, got %T", option.Name, i)
	}
	return nil
}

func parseString(option *ConfigOption, i interface{}) error {
	s, ok := i.(string)
	if !ok {
		return fmt.Errorf("%s expects a string, got %T", option.Name, i)
	}
	*option.ConfigKey.(*string) = s
	return nil
}

// parseUnsigned handles every unsigned integer width, rejecting negative
// numbers and values the target cannot hold.
func parseUnsigned(option *ConfigOption, i interface{}) error {
	n, err := toUint64(option.Name, i)
	if err != nil {
		return err
	}
	target := reflect.ValueOf(option.ConfigKey).Elem()
	if target.OverflowUint(n) {
		return fmt.Errorf("%d overflows %s (%s)", n, option.Name, target.Kind())
	}
	target.SetUint(n)
	return nil
}

func toUint64(name string, i interface{}) (uint64, error) {
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.String:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "could not parse %s", name)
		}
		return n, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() < 0 {
			return 0, fmt.Errorf("%s cannot be negative", name)
		}
		return uint64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	}
	return 0, fmt.Errorf("%s expects an unsigned integer, got %T", name, i)
}

func parseDuration(option *ConfigOption, i interface{}) error {
	target := option.ConfigKey.(*time.Duration)
	switch v := i.(type) {
	case time.Duration:
		*target = v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "could not parse %s", option.Name)
		}
		*target = d
	default:
		return fmt.Errorf("%s expects a duration, got %T", option.Name, i)
	}
	return nil
}

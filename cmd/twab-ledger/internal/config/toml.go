package config

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml"
	"github.com/stellar/go/support/errors"
)

// tomlOptions returns the options that can appear in a config file, keyed by
// their toml key.
func (cfg *Config) tomlOptions() map[string]*ConfigOption {
	byKey := make(map[string]*ConfigOption)
	for _, option := range cfg.options() {
		if key, ok := option.getTomlKey(); ok {
			byKey[key] = option
		}
	}
	return byKey
}

// parseToml reads a config file into cfg. Unknown keys are an error when
// strict is passed or when the file itself sets STRICT = true.
func parseToml(r io.Reader, strict bool, cfg *Config) error {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return errors.Wrap(err, "could not read toml")
	}

	known := cfg.tomlOptions()
	var unknown []string
	for _, key := range tree.Keys() {
		option, ok := known[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if err := option.setValue(tree.Get(key)); err != nil {
			return errors.Wrapf(err, "invalid value for %s", key)
		}
	}

	if len(unknown) > 0 && (strict || cfg.Strict) {
		return fmt.Errorf("Invalid config: unknown field %q", unknown[0])
	}
	return nil
}

// MarshalTOML renders every toml-visible option with its usage as a comment.
// Options left at their zero value are written commented out.
func (cfg *Config) MarshalTOML() ([]byte, error) {
	tree, err := toml.TreeFromMap(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	for _, option := range cfg.options() {
		key, ok := option.getTomlKey()
		if !ok {
			continue
		}
		value, err := option.marshalTOML()
		if err != nil {
			return nil, errors.Wrapf(err, "could not marshal %s", key)
		}
		tree.SetWithOptions(key, toml.SetOptions{Comment: option.Usage, Commented: option.isUnset()}, value)
	}
	return tree.Marshal()
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigOptionGetTomlKey(t *testing.T) {
	// Explicitly set toml key
	key, ok := ConfigOption{TomlKey: "TOML_KEY"}.getTomlKey()
	assert.Equal(t, "TOML_KEY", key)
	assert.True(t, ok)

	// Explicitly disabled toml key via `-`
	key, ok = ConfigOption{TomlKey: "-"}.getTomlKey()
	assert.Equal(t, "", key)
	assert.False(t, ok)

	// Explicitly disabled toml key via `_`
	key, ok = ConfigOption{TomlKey: "_"}.getTomlKey()
	assert.Equal(t, "", key)
	assert.False(t, ok)

	// The env var prefix is not part of the toml key
	key, ok = ConfigOption{Name: "test-flag", EnvVar: "TWAB_LEDGER_TEST_FLAG"}.getTomlKey()
	assert.Equal(t, "TEST_FLAG", key)
	assert.True(t, ok)

	// Autogenerate from name
	key, ok = ConfigOption{Name: "test-flag"}.getTomlKey()
	assert.Equal(t, "TEST_FLAG", key)
	assert.True(t, ok)
}

func TestSetValue(t *testing.T) {
	var b bool
	var u uint
	var u32 uint32
	var s string
	var d time.Duration

	for _, scenario := range []struct {
		name    string
		key     interface{}
		value   interface{}
		wantErr bool
	}{
		{"valid-bool", &b, true, false},
		{"valid-bool-string", &b, "false", false},
		{"invalid-bool-string", &b, "foobar", true},
		{"valid-uint", &u, 45, false},
		{"valid-uint-string", &u, "46", false},
		{"invalid-uint", &u, -1, true},
		{"valid-uint32", &u32, 43, false},
		{"overflow-uint32", &u32, uint64(1) << 40, true},
		{"valid-string", &s, "foobar", false},
		{"invalid-string", &s, 42, true},
		{"valid-duration", &d, "5m", false},
		{"invalid-duration", &d, "five minutes", true},
	} {
		t.Run(scenario.name, func(t *testing.T) {
			co := ConfigOption{
				Name:      scenario.name,
				ConfigKey: scenario.key,
			}
			err := co.setValue(scenario.value)
			if scenario.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
	assert.False(t, b)
	assert.Equal(t, uint(46), u)
	assert.Equal(t, uint32(43), u32)
	assert.Equal(t, "foobar", s)
	assert.Equal(t, 5*time.Minute, d)
}

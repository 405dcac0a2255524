package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basicToml = `
DB_PATH = "/var/lib/twab-ledger/ledger.sqlite"
LOG_LEVEL = "debug"
LOG_FORMAT = "json"
OBSERVATION_CARDINALITY = 64
MAX_BATCH_LENGTH = 10
INGESTION_TIMEOUT = "30s"
PUBLISHER = "0x00000000000000000000000000000000000000aa"
`

func TestBasicTomlReading(t *testing.T) {
	cfg := Config{}
	require.NoError(t, parseToml(strings.NewReader(basicToml), false, &cfg))

	// Check a few fields got read correctly
	assert.Equal(t, "/var/lib/twab-ledger/ledger.sqlite", cfg.SQLiteDBPath)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, uint32(64), cfg.ObservationCardinality)
	assert.Equal(t, uint(10), cfg.MaxBatchLength)
	assert.Equal(t, 30*time.Second, cfg.IngestionTimeout)
	assert.Equal(t, common.HexToAddress("0xaa"), cfg.Publisher)
}

func TestBasicTomlReadingStrictMode(t *testing.T) {
	invalidToml := `UNKNOWN = "key"`
	cfg := Config{}

	// Should fail when unknown key and strict set in the cli flags
	require.EqualError(
		t,
		parseToml(strings.NewReader(invalidToml), true, &cfg),
		"Invalid config: unknown field \"UNKNOWN\"",
	)

	// Should fail when unknown key and strict set in the config file
	invalidStrictToml := `
	STRICT = true
	UNKNOWN = "key"
`
	require.EqualError(
		t,
		parseToml(strings.NewReader(invalidStrictToml), false, &cfg),
		"Invalid config: unknown field \"UNKNOWN\"",
	)

	// It passes on a valid config
	require.NoError(t, parseToml(strings.NewReader(basicToml), true, &cfg))
}

func TestInvalidTomlValues(t *testing.T) {
	for _, invalid := range []string{
		`LOG_LEVEL = "loud"`,
		`LOG_FORMAT = "xml"`,
		`PUBLISHER = "alice"`,
		`OBSERVATION_CARDINALITY = -1`,
		`INGESTION_TIMEOUT = "soon"`,
	} {
		cfg := Config{}
		assert.Error(t, parseToml(strings.NewReader(invalid), false, &cfg), invalid)
	}
}

func TestRoundTrip(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.SetDefaults())
	cfg.LogLevel = logrus.WarnLevel
	cfg.LogFormat = LogFormatJSON
	cfg.ObservationCardinality = 128
	cfg.IngestionTimeout = time.Minute
	cfg.Publisher = common.HexToAddress("0xbb")
	cfg.Strict = true

	// Output it to toml
	outBytes, err := cfg.MarshalTOML()
	require.NoError(t, err)
	out := string(outBytes)
	t.Log(out)

	// Spot-check that the output looks right
	assert.Contains(t, out, "OBSERVATION_CARDINALITY = 128")
	assert.NotContains(t, out, "CONFIG_PATH")

	// Read it back
	cfg2 := Config{}
	require.NoError(t, parseToml(strings.NewReader(out), true, &cfg2))
	assert.Equal(t, cfg.LogLevel, cfg2.LogLevel)
	assert.Equal(t, cfg.LogFormat, cfg2.LogFormat)
	assert.Equal(t, cfg.ObservationCardinality, cfg2.ObservationCardinality)
	assert.Equal(t, cfg.MaxBatchLength, cfg2.MaxBatchLength)
	assert.Equal(t, cfg.IngestionTimeout, cfg2.IngestionTimeout)
	assert.Equal(t, cfg.Publisher, cfg2.Publisher)
	assert.Equal(t, cfg.SQLiteDBPath, cfg2.SQLiteDBPath)
	assert.True(t, cfg2.Strict)
}

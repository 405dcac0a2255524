package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func TestConfigSetDefaults(t *testing.T) {
	// Set up a default config
	cfg := Config{}
	require.NoError(t, cfg.SetDefaults())

	// Check that the defaults are set
	assert.Equal(t, "twab_ledger.sqlite", cfg.SQLiteDBPath)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, uint32(defaultObservationCardinality), cfg.ObservationCardinality)
	assert.Equal(t, uint32(defaultRecordBufferCardinality), cfg.DrawBufferCardinality)
	assert.Equal(t, uint(defaultMaxBatchLength), cfg.MaxBatchLength)
	assert.Equal(t, uint(defaultDBBusyRetries), cfg.DBBusyRetries)
}

func TestConfigPrecedence(t *testing.T) {
	dir := fs.NewDir(t, "twab-ledger-config",
		fs.WithFile("ledger.toml", `
DB_PATH = "from-file.sqlite"
LOG_LEVEL = "warn"
OBSERVATION_CARDINALITY = 64
DRAW_BUFFER_CARDINALITY = 8
`))
	defer dir.Remove()

	t.Setenv("TWAB_LEDGER_CONFIG_PATH", dir.Join("ledger.toml"))
	t.Setenv("TWAB_LEDGER_LOG_LEVEL", "error")
	t.Setenv("TWAB_LEDGER_OBSERVATION_CARDINALITY", "100")

	cfg := Config{}
	cmd := &cobra.Command{Use: "twab-ledger", Run: func(*cobra.Command, []string) {}}
	require.NoError(t, cfg.Init(cmd))
	require.NoError(t, cmd.ParseFlags([]string{"--observation-cardinality", "128"}))
	require.NoError(t, cfg.SetValues())
	require.NoError(t, cfg.Validate())

	// file beats defaults
	assert.Equal(t, "from-file.sqlite", cfg.SQLiteDBPath)
	assert.Equal(t, uint32(8), cfg.DrawBufferCardinality)
	// env beats file
	assert.Equal(t, logrus.ErrorLevel, cfg.LogLevel)
	// flags beat env
	assert.Equal(t, uint32(128), cfg.ObservationCardinality)
	// untouched options keep their default
	assert.Equal(t, uint32(defaultRecordBufferCardinality), cfg.PrizeDistributionBufferCardinality)
}

func TestMissingConfigFile(t *testing.T) {
	dir := fs.NewDir(t, "twab-ledger-config")
	defer dir.Remove()

	cfg := Config{ConfigPath: dir.Join("missing.toml")}
	assert.Error(t, cfg.loadConfigPath())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"KITE_API_KEY", "KITE_API_SECRET", "KITE_ACCESS_TOKEN", "OPENAI_API_KEY",
		"GROQ_API_KEY", "TRADING_MODE", "USER_SELECTED_STRATEGY", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesTemplates(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	for _, name := range []string{"config.toml", "credentials.toml", "agents.toml"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "NIFTY", cfg.Market.Symbol)
	assert.Equal(t, 50.0, cfg.Market.Tick)
	assert.Equal(t, 0.07, cfg.Market.RiskFreeRate)
	assert.True(t, cfg.IsPaperMode())
	assert.Equal(t, 11.0, cfg.Pipeline.MinVolIndex)
	assert.Equal(t, time.Minute, cfg.Agents.BreakerTimeout)
	assert.Equal(t, "groq", cfg.Agents.Provider(NodeRisk))
	assert.Equal(t, "", cfg.Agents.Provider(NodeStrategist))
	assert.Equal(t, DefaultVocabulary(), cfg.Agents.Vocabulary)
	assert.Equal(t, filepath.Join(dir, "runs.db"), cfg.JournalPath())

	day, err := cfg.ExpiryWeekday()
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, day)

	override, err := cfg.OverrideStrategy()
	require.NoError(t, err)
	assert.Empty(t, override)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KITE_API_KEY", "kite-key")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("USER_SELECTED_STRATEGY", "short straddle")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "kite-key", cfg.Credentials.Kite.APIKey)
	assert.Equal(t, "groq-key", cfg.Credentials.Groq.APIKey)

	override, err := cfg.OverrideStrategy()
	require.NoError(t, err)
	assert.Equal(t, models.ShortStraddle, override)
}

func TestVocabularyFileReplacesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	agents := `
[vocabulary]
approve = ["ok"]
reject = ["no"]

[[vocabulary.strategies]]
match = "fly"
strategy = "Iron Fly"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.toml"), []byte(agents), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Agents.Vocabulary.Strategies, 1)
	assert.Equal(t, "Iron Fly", cfg.Agents.Vocabulary.Strategies[0].Strategy)
	assert.Equal(t, []string{"no"}, cfg.Agents.Vocabulary.Reject)
	assert.Equal(t, []string{"ok"}, cfg.Agents.Vocabulary.Approve)
}

func TestVocabularyFileKeepsUnsetLists(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	agents := `
[vocabulary]
reject = ["veto"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.toml"), []byte(agents), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	def := DefaultVocabulary()
	assert.Equal(t, []string{"veto"}, cfg.Agents.Vocabulary.Reject)
	assert.Equal(t, def.Approve, cfg.Agents.Vocabulary.Approve)
	assert.Equal(t, def.Strategies, cfg.Agents.Vocabulary.Strategies)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad mode", func(c *Config) { c.Trading.Mode = "demo" }},
		{"zero tick", func(c *Config) { c.Market.Tick = 0 }},
		{"zero lots", func(c *Config) { c.Trading.Lots = 0 }},
		{"sigma above bound", func(c *Config) { c.Pipeline.MaxSigma = 4 }},
		{"default sigma outside range", func(c *Config) { c.Pipeline.DefaultSigma = 0.2 }},
		{"unknown default strategy", func(c *Config) { c.Pipeline.DefaultStrategy = "Butterfly" }},
		{"unknown override", func(c *Config) { c.Pipeline.Override = "Calendar" }},
		{"unknown weekday", func(c *Config) { c.Market.ExpiryWeekday = "Funday" }},
		{"empty vocabulary", func(c *Config) { c.Agents.Vocabulary.Strategies = nil }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
		})
	}
}

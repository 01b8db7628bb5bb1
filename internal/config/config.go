// Package config provides configuration management for the trading pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Market      MarketConfig   `mapstructure:"market"`
	Trading     TradingConfig  `mapstructure:"trading"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately
	Agents      AgentConfig    `mapstructure:"-"` // Loaded separately

	dir string
}

// MarketConfig describes the underlying and its option ladder.
type MarketConfig struct {
	Symbol        string  `mapstructure:"symbol"`
	Tick          float64 `mapstructure:"tick"`
	Steps         int     `mapstructure:"steps"`
	RiskFreeRate  float64 `mapstructure:"risk_free_rate"`
	ExpiryWeekday string  `mapstructure:"expiry_weekday"`
	WingWidth     float64 `mapstructure:"wing_width"`
}

// TradingConfig holds broker-facing settings.
type TradingConfig struct {
	Mode              string  `mapstructure:"mode"` // "live", "paper"
	Product           string  `mapstructure:"product"`
	OrderType         string  `mapstructure:"order_type"`
	Lots              int     `mapstructure:"lots"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// PipelineConfig holds decision defaults and risk pre-check limits.
type PipelineConfig struct {
	DefaultStrategy string  `mapstructure:"default_strategy"`
	DefaultSigma    float64 `mapstructure:"default_sigma"`
	MinSigma        float64 `mapstructure:"min_sigma"`
	MaxSigma        float64 `mapstructure:"max_sigma"`
	MinVolIndex     float64 `mapstructure:"min_vol_index"`
	RetryAttempts   int     `mapstructure:"retry_attempts"`
	// Override is the manual strategy; empty or "Auto" means none.
	Override string `mapstructure:"override"`
}

// StorageConfig locates the SQLite databases.
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	KnowledgeDB string `mapstructure:"knowledge_db"`
	JournalDB   string `mapstructure:"journal_db"`
	SeedFile    string `mapstructure:"seed_file"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite   KiteCredentials `mapstructure:"kite"`
	OpenAI APIKey          `mapstructure:"openai"`
	Groq   APIKey          `mapstructure:"groq"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// APIKey holds a single provider key.
type APIKey struct {
	APIKey string `mapstructure:"api_key"`
}

// AgentConfig holds generation routing and parser vocabulary.
type AgentConfig struct {
	DefaultProvider string            `mapstructure:"default_provider"`
	Temperature     float64           `mapstructure:"temperature"`
	OpenAIModel     string            `mapstructure:"openai_model"`
	GroqModel       string            `mapstructure:"groq_model"`
	GroqBaseURL     string            `mapstructure:"groq_base_url"`
	BreakerFailures int               `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration     `mapstructure:"breaker_timeout"`
	Providers       map[string]string `mapstructure:"providers"` // node -> provider hint
	Vocabulary      Vocabulary        `mapstructure:"vocabulary"`
}

// Vocabulary drives the keyword stage of response parsing.
type Vocabulary struct {
	// Strategies is checked in order; the first phrase found wins.
	Strategies   []Phrase `mapstructure:"strategies"`
	Approve      []string `mapstructure:"approve"`
	Reject       []string `mapstructure:"reject"`
	SigmaPattern string   `mapstructure:"sigma_pattern"`
}

func (v *Vocabulary) fillDefaults() {
	def := DefaultVocabulary()
	if len(v.Strategies) == 0 {
		v.Strategies = def.Strategies
	}
	if len(v.Approve) == 0 {
		v.Approve = def.Approve
	}
	if len(v.Reject) == 0 {
		v.Reject = def.Reject
	}
}

// Phrase maps a keyword phrase to a strategy.
type Phrase struct {
	Match    string `mapstructure:"match"`
	Strategy string `mapstructure:"strategy"`
}

// DefaultVocabulary returns the built-in parser vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Strategies: []Phrase{
			{Match: "iron fly", Strategy: string(models.IronFly)},
			{Match: "short straddle", Strategy: string(models.ShortStraddle)},
			{Match: "short strangle", Strategy: string(models.ShortStrangle)},
			{Match: "straddle", Strategy: string(models.ShortStraddle)},
			{Match: "strangle", Strategy: string(models.ShortStrangle)},
		},
		Approve:      []string{"approve", "approved"},
		Reject:       []string{"reject", "rejected"},
		SigmaPattern: `(?i)sigma[:\s]*(\d+\.?\d*)`,
	}
}

// Node names used as keys in AgentConfig.Providers.
const (
	NodeResearcher = "researcher"
	NodeMonitor    = "monitor"
	NodeStrategist = "strategist"
	NodeRisk       = "risk_manager"
)

// Provider returns the provider hint for a node, or "" for the default route.
func (a AgentConfig) Provider(node string) string {
	return a.Providers[node]
}

// Default returns the configuration used when no files are present.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Market: MarketConfig{
			Symbol:        "NIFTY",
			Tick:          50,
			Steps:         20,
			RiskFreeRate:  0.07,
			ExpiryWeekday: "Thursday",
			WingWidth:     300,
		},
		Trading: TradingConfig{
			Mode:              "paper",
			Product:           "NRML",
			OrderType:         string(models.OrderTypeMarket),
			Lots:              1,
			RequestsPerSecond: 3,
		},
		Pipeline: PipelineConfig{
			DefaultStrategy: string(models.DefaultStrategy),
			DefaultSigma:    models.DefaultSigmaMult,
			MinSigma:        models.MinSigmaMult,
			MaxSigma:        models.MaxSigmaMult,
			MinVolIndex:     11,
			RetryAttempts:   3,
		},
		Storage: StorageConfig{
			DataDir:     dir,
			KnowledgeDB: "knowledge.db",
			JournalDB:   "runs.db",
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Agents: AgentConfig{
			DefaultProvider: "openai",
			Temperature:     0.7,
			OpenAIModel:     "gpt-4-turbo",
			GroqModel:       "llama-3.3-70b-versatile",
			GroqBaseURL:     "https://api.groq.com/openai/v1",
			BreakerFailures: 3,
			BreakerTimeout:  time.Minute,
			Providers: map[string]string{
				NodeResearcher: "groq",
				NodeRisk:       "groq",
			},
			Vocabulary: DefaultVocabulary(),
		},
		dir: dir,
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/sigma-trader"
	}
	return filepath.Join(home, ".config", "sigma-trader")
}

// Load loads configuration from the specified directory, creating template
// files for any that are missing. If configDir is empty, uses the default
// config directory. A .env file in the working directory is read first.
func Load(configDir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()
	cfg.dir = configDir
	cfg.Storage.DataDir = configDir

	if err := loadFile(configDir, "config", configTemplate, 0644, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadFile(configDir, "credentials", credentialsTemplate, 0600, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}
	// A configured vocabulary list replaces the built-in one rather than merging into it.
	vocab := &cfg.Agents.Vocabulary
	vocab.Strategies, vocab.Approve, vocab.Reject = nil, nil, nil
	if err := loadFile(configDir, "agents", agentsTemplate, 0644, &cfg.Agents); err != nil {
		return nil, fmt.Errorf("loading agents.toml: %w", err)
	}
	vocab.fillDefaults()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadFile reads name.toml over the defaults already in target. A missing
// file is written from template and then read.
func loadFile(configDir, name, template string, perm os.FileMode, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := writeTemplate(configDir, name, template, perm); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Credentials.Groq.APIKey = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("USER_SELECTED_STRATEGY"); v != "" {
		cfg.Pipeline.Override = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return errors.NewValidationError("trading.mode", c.Trading.Mode, "must be 'live' or 'paper'")
	}
	if c.Trading.Lots <= 0 {
		return errors.NewValidationError("trading.lots", c.Trading.Lots, "must be positive")
	}
	if c.Market.Tick <= 0 {
		return errors.NewValidationError("market.tick", c.Market.Tick, "must be positive")
	}
	if c.Market.Steps <= 0 {
		return errors.NewValidationError("market.steps", c.Market.Steps, "must be positive")
	}
	if _, err := c.ExpiryWeekday(); err != nil {
		return err
	}
	p := c.Pipeline
	if p.MinSigma < models.MinSigmaMult || p.MaxSigma > models.MaxSigmaMult || p.MinSigma > p.MaxSigma {
		return errors.NewValidationError("pipeline.min_sigma/max_sigma", fmt.Sprintf("%g-%g", p.MinSigma, p.MaxSigma),
			fmt.Sprintf("must lie within %g-%g", models.MinSigmaMult, models.MaxSigmaMult))
	}
	if p.DefaultSigma < p.MinSigma || p.DefaultSigma > p.MaxSigma {
		return errors.NewValidationError("pipeline.default_sigma", p.DefaultSigma, "must lie within min_sigma and max_sigma")
	}
	if _, err := models.ParseStrategy(p.DefaultStrategy); err != nil {
		return errors.NewValidationError("pipeline.default_strategy", p.DefaultStrategy, err.Error())
	}
	if _, err := c.OverrideStrategy(); err != nil {
		return err
	}
	if len(c.Agents.Vocabulary.Strategies) == 0 {
		return errors.NewValidationError("vocabulary.strategies", nil, "must not be empty")
	}
	for _, ph := range c.Agents.Vocabulary.Strategies {
		if _, err := models.ParseStrategy(ph.Strategy); err != nil {
			return errors.NewValidationError("vocabulary.strategies", ph.Strategy, err.Error())
		}
	}
	return nil
}

// ExpiryWeekday parses Market.ExpiryWeekday.
func (c *Config) ExpiryWeekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.Market.ExpiryWeekday))
	if name == "" {
		return time.Thursday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name || strings.ToLower(d.String()[:3]) == name {
			return d, nil
		}
	}
	return time.Thursday, errors.NewValidationError("market.expiry_weekday", c.Market.ExpiryWeekday, "unknown weekday")
}

// OverrideStrategy returns the manual strategy, or "" when none is set.
func (c *Config) OverrideStrategy() (models.Strategy, error) {
	o := strings.TrimSpace(c.Pipeline.Override)
	if o == "" || strings.EqualFold(o, "auto") {
		return "", nil
	}
	s, err := models.ParseStrategy(o)
	if err != nil {
		return "", errors.NewValidationError("pipeline.override", o, err.Error())
	}
	return s, nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.dir
}

// KnowledgePath returns the knowledge database path.
func (c *Config) KnowledgePath() string {
	return c.dataPath(c.Storage.KnowledgeDB)
}

// JournalPath returns the run journal database path.
func (c *Config) JournalPath() string {
	return c.dataPath(c.Storage.JournalDB)
}

func (c *Config) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Storage.DataDir, name)
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal     PortalConfig     `yaml:"portal" mapstructure:"portal"`
	Categories []CategoryConfig `yaml:"categories" mapstructure:"categories"`
	Window     WindowConfig     `yaml:"window" mapstructure:"window"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PortalConfig configures the listing crawl and local download directory.
type PortalConfig struct {
	ListingURL  string   `yaml:"listing_url" mapstructure:"listing_url"`
	TargetDir   string   `yaml:"target_dir" mapstructure:"target_dir"`
	UserAgent   string   `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Suffix      string   `yaml:"suffix" mapstructure:"suffix"`
	Include     []string `yaml:"include" mapstructure:"include"`
	Exclude     []string `yaml:"exclude" mapstructure:"exclude"`
}

// CategoryConfig names one consolidated output: the substring selecting its
// source files and the prefixes of the full and windowed outputs.
type CategoryConfig struct {
	Filter       string `yaml:"filter" mapstructure:"filter"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`
	WindowPrefix string `yaml:"window_prefix" mapstructure:"window_prefix"`
}

// WindowConfig configures the trailing-window extract and period handling.
type WindowConfig struct {
	Months     int    `yaml:"months" mapstructure:"months"`
	NullPeriod string `yaml:"null_period" mapstructure:"null_period"`
}

// StoreConfig configures the run ledger database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultCategories returns the two categories published on the ANTT
// authorization dataset page.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Filter: "horarios_", Prefix: "todos_horarios_ordenados", WindowPrefix: "todos_horarios"},
		{Filter: "linhas_secoes_", Prefix: "empresas_linhas_secoes_ordenados", WindowPrefix: "empresas_linhas_secoes"},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.listing_url", "https://dados.antt.gov.br/dataset/gerenciamento-de-autorizacoes")
	v.SetDefault("portal.target_dir", "projeto_1")
	v.SetDefault("portal.user_agent", "portal-etl/1.0")
	v.SetDefault("portal.timeout_secs", 120)
	v.SetDefault("portal.rate_limit", 2.0)
	v.SetDefault("portal.suffix", ".csv")
	v.SetDefault("portal.include", []string{"horarios_", "linhas_secoes"})
	v.SetDefault("portal.exclude", []string{"historico_linhas_secoes"})
	v.SetDefault("window.months", 3)
	v.SetDefault("window.null_period", "drop")
	v.SetDefault("store.path", "portal-etl.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings that the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Portal.TargetDir == "" {
		return eris.New("config: portal.target_dir is required")
	}
	if c.Window.Months < 1 {
		return eris.Errorf("config: window.months must be positive, got %d", c.Window.Months)
	}
	switch c.Window.NullPeriod {
	case "drop", "fail", "keep":
	default:
		return eris.Errorf("config: window.null_period %q (valid: drop, fail, keep)", c.Window.NullPeriod)
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Filter == "" || cat.Prefix == "" || cat.WindowPrefix == "" {
			return eris.Errorf("config: categories[%d] needs filter, prefix and window_prefix", i)
		}
		if seen[cat.Prefix] {
			return eris.Errorf("config: duplicate category prefix %q", cat.Prefix)
		}
		seen[cat.Prefix] = true
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

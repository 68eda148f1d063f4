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
	Grid     GridConfig     `yaml:"grid" mapstructure:"grid"`
	Margins  MarginsConfig  `yaml:"margins" mapstructure:"margins"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GridConfig configures the statistical population grid source.
// The defaults point at the IBGE 2022 census statistical grid release;
// IndexURL and BaseURL also accept ftp:// mirrors of the same archive tree.
type GridConfig struct {
	IndexURL    string  `yaml:"index_url" mapstructure:"index_url"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	CacheDir    string  `yaml:"cache_dir" mapstructure:"cache_dir"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// MarginsConfig holds default flight parameters for safety margin generation.
type MarginsConfig struct {
	Height      float64 `yaml:"height" mapstructure:"height"`
	CVSize      float64 `yaml:"cv_size" mapstructure:"cv_size"`
	AdjSize     float64 `yaml:"adj_size" mapstructure:"adj_size"`
	CornerStyle string  `yaml:"corner_style" mapstructure:"corner_style"`
}

// AnalysisConfig configures population density thresholds in hab/km².
type AnalysisConfig struct {
	OperationalThreshold float64 `yaml:"operational_threshold" mapstructure:"operational_threshold"`
	AdjacentThreshold    float64 `yaml:"adjacent_threshold" mapstructure:"adjacent_threshold"`
}

// ServerConfig configures the analysis HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GROUNDRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("grid.index_url", "https://geoftp.ibge.gov.br/recortes_para_fins_estatisticos/grade_estatistica/censo_2022/grade_500km/BR500KM.zip")
	v.SetDefault("grid.base_url", "https://geoftp.ibge.gov.br/recortes_para_fins_estatisticos/grade_estatistica/censo_2022/grade_estatistica")
	v.SetDefault("grid.cache_dir", "dados_ibge")
	v.SetDefault("grid.timeout_secs", 30)
	v.SetDefault("grid.rate_per_sec", 2)
	v.SetDefault("margins.height", 100)
	v.SetDefault("margins.cv_size", 215)
	v.SetDefault("margins.adj_size", 5000)
	v.SetDefault("margins.corner_style", "square")
	v.SetDefault("analysis.operational_threshold", 5)
	v.SetDefault("analysis.adjacent_threshold", 50)
	v.SetDefault("server.port", 8080)
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

	return &cfg, nil
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

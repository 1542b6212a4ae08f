package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// MapConfig configures the map surface and annotation styling.
type MapConfig struct {
	Style  string `yaml:"style" mapstructure:"style"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	CenterLng float64 `yaml:"center_lng" mapstructure:"center_lng"`
	CenterLat float64 `yaml:"center_lat" mapstructure:"center_lat"`
	Zoom      float64 `yaml:"zoom" mapstructure:"zoom"`
	MinZoom   float64 `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom   float64 `yaml:"max_zoom" mapstructure:"max_zoom"`
	Width     int     `yaml:"width" mapstructure:"width"`
	Height    int     `yaml:"height" mapstructure:"height"`

	DisplayMinZoom float64 `yaml:"display_min_zoom" mapstructure:"display_min_zoom"`
	DisplayMaxZoom float64 `yaml:"display_max_zoom" mapstructure:"display_max_zoom"`
	PointsMaxZoom  float64 `yaml:"points_max_zoom" mapstructure:"points_max_zoom"`
	FitPadding     int     `yaml:"fit_padding" mapstructure:"fit_padding"`
	FitDurationMs  int     `yaml:"fit_duration_ms" mapstructure:"fit_duration_ms"`

	SelectionRadiusKm float64 `yaml:"selection_radius_km" mapstructure:"selection_radius_km"`
	DiskSteps         int     `yaml:"disk_steps" mapstructure:"disk_steps"`

	PopupMaxWidth     string   `yaml:"popup_max_width" mapstructure:"popup_max_width"`
	MarkerStrokeColor string   `yaml:"marker_stroke_color" mapstructure:"marker_stroke_color"`
	MarkerStrokeWidth int      `yaml:"marker_stroke_width" mapstructure:"marker_stroke_width"`
	MarkerSize        int      `yaml:"marker_size" mapstructure:"marker_size"`
	BoundaryLineColor string   `yaml:"boundary_line_color" mapstructure:"boundary_line_color"`
	Palette           []string `yaml:"palette" mapstructure:"palette"`
}

// AnalysisConfig configures the remote analysis service.
type AnalysisConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RPS               float64 `yaml:"rps" mapstructure:"rps"`
	IncludeFactors    bool    `yaml:"include_factors" mapstructure:"include_factors"`
	IncludeComparison bool    `yaml:"include_comparison" mapstructure:"include_comparison"`
}

// GeocodeConfig configures forward geocoding for place search.
type GeocodeConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
	CacheSize int     `yaml:"cache_size" mapstructure:"cache_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("MAPMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("map.style", "streets")
	v.SetDefault("map.center_lng", 0.0)
	v.SetDefault("map.center_lat", 0.0)
	v.SetDefault("map.zoom", 0.5)
	v.SetDefault("map.min_zoom", 2.0)
	v.SetDefault("map.max_zoom", 16.0)
	v.SetDefault("map.width", 1024)
	v.SetDefault("map.height", 768)
	v.SetDefault("map.display_min_zoom", 10.0)
	v.SetDefault("map.display_max_zoom", 12.0)
	v.SetDefault("map.points_max_zoom", 13.0)
	v.SetDefault("map.fit_padding", 50)
	v.SetDefault("map.fit_duration_ms", 1000)
	v.SetDefault("map.selection_radius_km", 5.0)
	v.SetDefault("map.disk_steps", 64)
	v.SetDefault("map.popup_max_width", "320px")
	v.SetDefault("map.marker_stroke_color", "#FFFFFF")
	v.SetDefault("map.marker_stroke_width", 2)
	v.SetDefault("map.marker_size", 14)
	v.SetDefault("map.boundary_line_color", "#FF0000")
	v.SetDefault("map.palette", []string{"#0088FE", "#00C49F", "#FFBB28", "#FF8042", "#AF19FF", "#FF1919"})
	v.SetDefault("analysis.base_url", "http://localhost:8000")
	v.SetDefault("analysis.timeout_secs", 60)
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.rps", 2.0)
	v.SetDefault("analysis.include_factors", true)
	v.SetDefault("analysis.include_comparison", true)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "mapmind/1.0")
	v.SetDefault("geocode.rps", 1.0)
	v.SetDefault("geocode.cache_size", 256)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks the settings a command needs. mode is one of "serve",
// "analyze", "render" or "disk".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Map.MinZoom > c.Map.MaxZoom {
		errs = append(errs, "map.min_zoom must not exceed map.max_zoom")
	}
	if c.Map.DisplayMinZoom > c.Map.DisplayMaxZoom {
		errs = append(errs, "map.display_min_zoom must not exceed map.display_max_zoom")
	}
	if !(c.Map.SelectionRadiusKm > 0) {
		errs = append(errs, "map.selection_radius_km must be positive")
	}
	if c.Map.DiskSteps != 0 && c.Map.DiskSteps < 3 {
		errs = append(errs, "map.disk_steps must be at least 3")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
		if c.Analysis.BaseURL == "" {
			errs = append(errs, "analysis.base_url is required")
		}
	case "analyze":
		if c.Analysis.BaseURL == "" {
			errs = append(errs, "analysis.base_url is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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

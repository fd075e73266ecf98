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
	Inputs    InputsConfig    `yaml:"inputs" mapstructure:"inputs"`
	Census    CensusConfig    `yaml:"census" mapstructure:"census"`
	Score     ScoreConfig     `yaml:"score" mapstructure:"score"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputsConfig lists the source layers consumed by the scoring pipeline.
type InputsConfig struct {
	Subzones LayerConfig `yaml:"subzones" mapstructure:"subzones"`
	Census   LayerConfig `yaml:"census" mapstructure:"census"`
	Hawkers  LayerConfig `yaml:"hawkers" mapstructure:"hawkers"`
	MRTExits LayerConfig `yaml:"mrt_exits" mapstructure:"mrt_exits"`
	BusStops LayerConfig `yaml:"bus_stops" mapstructure:"bus_stops"`
}

// LayerConfig locates one input source. Path may be a local file, an
// http(s):// or ftp:// URL, or a .zip archive of either.
type LayerConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	CRS      string `yaml:"crs" mapstructure:"crs"`
	ForceCRS bool   `yaml:"force_crs" mapstructure:"force_crs"`
}

// CensusConfig describes the census table layout.
type CensusConfig struct {
	IDColumn string   `yaml:"id_column" mapstructure:"id_column"`
	Sheet    string   `yaml:"sheet" mapstructure:"sheet"`
	Encoding string   `yaml:"encoding" mapstructure:"encoding"`
	Youth    []string `yaml:"youth" mapstructure:"youth"`
	Working  []string `yaml:"working" mapstructure:"working"`
	Elderly  []string `yaml:"elderly" mapstructure:"elderly"`
}

// ScoreConfig configures the scoring engine and exporter.
type ScoreConfig struct {
	Weights      WeightsConfig `yaml:"weights" mapstructure:"weights"`
	Access       AccessConfig  `yaml:"access" mapstructure:"access"`
	ProjectedCRS string        `yaml:"projected_crs" mapstructure:"projected_crs"`
	Output       string        `yaml:"output" mapstructure:"output"`
	Manifest     bool          `yaml:"manifest" mapstructure:"manifest"`
}

// WeightsConfig holds the H-score composite weights.
type WeightsConfig struct {
	Demand float64 `yaml:"demand" mapstructure:"demand"`
	Supply float64 `yaml:"supply" mapstructure:"supply"`
	Access float64 `yaml:"access" mapstructure:"access"`
}

// AccessConfig holds the accessibility blend weights.
type AccessConfig struct {
	MRT float64 `yaml:"mrt" mapstructure:"mrt"`
	Bus float64 `yaml:"bus" mapstructure:"bus"`
}

// FetchConfig configures remote source downloads.
type FetchConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// StoreConfig configures the snapshot database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AdminToken     string   `yaml:"admin_token" mapstructure:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	CacheEntries   int      `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLSecs   int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// AnthropicConfig holds Anthropic API settings for the chat assistant.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`

	// BreakerThreshold consecutive upstream failures open the circuit
	// for BreakerCooldownSecs.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default census age bands, as published in the 2020 Census of Population
// resident table.
var (
	DefaultYouthColumns   = []string{"Total_0_4", "Total_5_9", "Total_10_14", "Total_15_19", "Total_20_24", "Total_25_29"}
	DefaultWorkingColumns = []string{"Total_30_34", "Total_35_39", "Total_40_44", "Total_45_49", "Total_50_54", "Total_55_59", "Total_60_64"}
	DefaultElderlyColumns = []string{"Total_65_69", "Total_70_74", "Total_75_79", "Total_80_84", "Total_85_89", "Total_90andOver"}
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("inputs.subzones.path", "data/MasterPlan2019SubzoneBoundaryNoSeaGEOJSON.geojson")
	v.SetDefault("inputs.subzones.crs", "EPSG:4326")
	v.SetDefault("inputs.census.path", "data/ResidentPopulationbyPlanningAreaSubzoneofResidenceAgeGroupandSexCensusofPopulation2020.csv")
	v.SetDefault("inputs.hawkers.path", "data/HawkerCentresGEOJSON.geojson")
	v.SetDefault("inputs.hawkers.crs", "EPSG:4326")
	v.SetDefault("inputs.mrt_exits.path", "data/LTAMRTStationExitGEOJSON.geojson")
	v.SetDefault("inputs.mrt_exits.crs", "EPSG:4326")
	v.SetDefault("inputs.mrt_exits.force_crs", true)
	v.SetDefault("inputs.bus_stops.path", "data/bus_stops.geojson")
	v.SetDefault("inputs.bus_stops.crs", "EPSG:3414")
	v.SetDefault("inputs.bus_stops.force_crs", true)
	v.SetDefault("census.id_column", "Number")
	v.SetDefault("census.youth", DefaultYouthColumns)
	v.SetDefault("census.working", DefaultWorkingColumns)
	v.SetDefault("census.elderly", DefaultElderlyColumns)
	v.SetDefault("score.weights.demand", 0.5)
	v.SetDefault("score.weights.supply", 0.3)
	v.SetDefault("score.weights.access", 0.2)
	v.SetDefault("score.access.mrt", 0.7)
	v.SetDefault("score.access.bus", 0.3)
	v.SetDefault("score.projected_crs", "EPSG:3414")
	v.SetDefault("score.output", "hawker_opportunities.geojson")
	v.SetDefault("score.manifest", true)
	v.SetDefault("fetch.temp_dir", "/tmp/hscore")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "hscore/1.0")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.cache_entries", 16)
	v.SetDefault("server.cache_ttl_secs", 300)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.breaker_threshold", 5)
	v.SetDefault("anthropic.breaker_cooldown_secs", 30)
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

// Validate checks the settings a command needs before it does any work.
// Sections: "score", "store", "chat".
func (c *Config) Validate(section string) error {
	switch section {
	case "score":
		if c.Inputs.Subzones.Path == "" {
			return eris.New("config: inputs.subzones.path is required (HSCORE_INPUTS_SUBZONES_PATH)")
		}
		if c.Inputs.Census.Path == "" {
			return eris.New("config: inputs.census.path is required (HSCORE_INPUTS_CENSUS_PATH)")
		}
		if c.Census.IDColumn == "" {
			return eris.New("config: census.id_column is required")
		}
	case "store":
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				return eris.New("config: store.database_url is required for postgres (HSCORE_STORE_DATABASE_URL)")
			}
		case "sqlite":
		default:
			return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
		}
	case "chat":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required (HSCORE_ANTHROPIC_KEY)")
		}
	default:
		return eris.Errorf("config: unknown section %q", section)
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

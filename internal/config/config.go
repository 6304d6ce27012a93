// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Supported LLM providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderDashScope = "dashscope"
)

// Supported episode store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config is the root configuration object.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Apps    AppsConfig    `mapstructure:"apps" yaml:"apps"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// DeviceConfig describes how the single attached device is reached over adb.
type DeviceConfig struct {
	ADBPath          string        `mapstructure:"adb_path" yaml:"adb_path"`
	Serial           string        `mapstructure:"serial" yaml:"serial"` // empty picks the only attached device
	CommandTimeout   time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	ScreenWidth      int           `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight     int           `mapstructure:"screen_height" yaml:"screen_height"`
	TapSettle        time.Duration `mapstructure:"tap_settle" yaml:"tap_settle"`
	TypeSettle       time.Duration `mapstructure:"type_settle" yaml:"type_settle"`
	LaunchSettle     time.Duration `mapstructure:"launch_settle" yaml:"launch_settle"`
	SwipeSettle      time.Duration `mapstructure:"swipe_settle" yaml:"swipe_settle"`
	CleanAppsOnExit  bool          `mapstructure:"clean_apps_on_exit" yaml:"clean_apps_on_exit"`
	LauncherPackages []string      `mapstructure:"launcher_packages" yaml:"launcher_packages"`
}

// AgentConfig controls the perception-plan-act loop.
type AgentConfig struct {
	MaxSteps        int            `mapstructure:"max_steps" yaml:"max_steps"`
	PlanningRetries int            `mapstructure:"planning_retries" yaml:"planning_retries"`
	LoadRetries     int            `mapstructure:"load_retries" yaml:"load_retries"` // total captures while a page loads
	LoadRetryDelay  time.Duration  `mapstructure:"load_retry_delay" yaml:"load_retry_delay"`
	PersistEachStep bool           `mapstructure:"persist_each_step" yaml:"persist_each_step"`
	HistoryLimit    int            `mapstructure:"history_limit" yaml:"history_limit"`
	Multimodal      bool           `mapstructure:"multimodal" yaml:"multimodal"`
	MarkScreenshots bool           `mapstructure:"mark_screenshots" yaml:"mark_screenshots"`
	MaxWait         time.Duration  `mapstructure:"max_wait" yaml:"max_wait"`
	LLM             LLMModelConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMModelConfig holds the configuration for the plan oracle's model.
type LLMModelConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP              float64       `mapstructure:"top_p" yaml:"top_p"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AppsConfig points at the yaml file backing the app registry.
type AppsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// StoreConfig selects where episode records are written.
type StoreConfig struct {
	Driver    string         `mapstructure:"driver" yaml:"driver"`
	OutputDir string         `mapstructure:"output_dir" yaml:"output_dir"`
	Postgres  PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
}

// PostgresConfig holds the connection string for the postgres driver.
type PostgresConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SQLiteConfig holds the database path for the sqlite driver.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// DefaultLauncherPackages are home-screen packages that are never force-stopped.
var DefaultLauncherPackages = []string{
	"com.android.launcher3",
	"com.miui.home",
	"com.huawei.android.launcher",
	"com.hihonor.android.launcher",
	"com.oneplus.launcher",
	"com.sec.android.app.launcher",
	"com.samsung.android.launcher",
}

// SetDefaults registers every key with viper so environment variables and
// partial config files resolve against a complete tree.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "droidpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.serial", "")
	v.SetDefault("device.command_timeout", "30s")
	v.SetDefault("device.screen_width", 1080)
	v.SetDefault("device.screen_height", 2400)
	v.SetDefault("device.tap_settle", "4s")
	v.SetDefault("device.type_settle", "1s")
	v.SetDefault("device.launch_settle", "5s")
	v.SetDefault("device.swipe_settle", "2s")
	v.SetDefault("device.clean_apps_on_exit", true)
	v.SetDefault("device.launcher_packages", DefaultLauncherPackages)

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.planning_retries", 1)
	v.SetDefault("agent.load_retries", 4)
	v.SetDefault("agent.load_retry_delay", "2s")
	v.SetDefault("agent.persist_each_step", true)
	v.SetDefault("agent.history_limit", 20)
	v.SetDefault("agent.multimodal", false)
	v.SetDefault("agent.mark_screenshots", true)
	v.SetDefault("agent.max_wait", "10s")
	v.SetDefault("agent.llm.provider", ProviderGemini)
	v.SetDefault("agent.llm.model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.endpoint", "")
	v.SetDefault("agent.llm.api_timeout", "90s")
	v.SetDefault("agent.llm.temperature", 0.0)
	v.SetDefault("agent.llm.top_p", 0.8)
	v.SetDefault("agent.llm.requests_per_minute", 30)

	// -- Apps --
	v.SetDefault("apps.file", "apps.yaml")

	// -- Store --
	v.SetDefault("store.driver", StoreFile)
	v.SetDefault("store.output_dir", "output")
	v.SetDefault("store.postgres.url", "")
	v.SetDefault("store.sqlite.path", "droidpilot.db")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
}

// NewDefaultConfig builds a configuration from defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// API keys are commonly exported under the provider's own name.
	_ = v.BindEnv("agent.llm.api_key", "DROIDPILOT_AGENT_LLM_API_KEY", "DROIDPILOT_LLM_API_KEY")
	_ = v.BindEnv("store.postgres.url", "DROIDPILOT_STORE_POSTGRES_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Agent.LLM.APIKey == "" {
		cfg.Agent.LLM.APIKey = providerKeyFromEnv(cfg.Agent.LLM.Provider)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderDashScope:
		return os.Getenv("DASHSCOPE_API_KEY")
	}
	return ""
}

// ExpandPaths resolves a leading "~" in every path-valued setting.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.Logger.LogFile,
		&c.Apps.File,
		&c.Store.OutputDir,
		&c.Store.SQLite.Path,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.PlanningRetries < 0 {
		return fmt.Errorf("agent.planning_retries cannot be negative")
	}
	if c.Agent.LoadRetries < 0 {
		return fmt.Errorf("agent.load_retries cannot be negative")
	}
	if c.Device.ScreenWidth <= 0 || c.Device.ScreenHeight <= 0 {
		return fmt.Errorf("device.screen_width and device.screen_height must be positive")
	}
	switch c.Agent.LLM.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderDashScope:
	default:
		return fmt.Errorf("agent.llm.provider %q is not supported", c.Agent.LLM.Provider)
	}
	if c.Agent.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("agent.llm.requests_per_minute cannot be negative")
	}
	switch c.Store.Driver {
	case StoreFile:
	case StorePostgres:
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("store.postgres.url is required when store.driver is postgres")
		}
	case StoreSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required when store.driver is sqlite")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Store.OutputDir == "" {
		return fmt.Errorf("store.output_dir is required")
	}
	return nil
}

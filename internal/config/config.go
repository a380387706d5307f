package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig             `yaml:"store" mapstructure:"store"`
	Log        LogConfig               `yaml:"log" mapstructure:"log"`
	Fetch      FetchConfig             `yaml:"fetch" mapstructure:"fetch"`
	Schedule   ScheduleConfig          `yaml:"schedule" mapstructure:"schedule"`
	Sources    map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	OCR        OCRConfig               `yaml:"ocr" mapstructure:"ocr"`
	Server     ServerConfig            `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchConfig bounds outbound request behavior. Pacing and backoff are
// expressed in multiples of TimeUnit.
type FetchConfig struct {
	TimeoutSecs    int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	TimeUnit       time.Duration `yaml:"time_unit" mapstructure:"time_unit"`
	PaceMin        float64       `yaml:"pace_min" mapstructure:"pace_min"`
	PaceMax        float64       `yaml:"pace_max" mapstructure:"pace_max"`
	BackoffMin     float64       `yaml:"backoff_min" mapstructure:"backoff_min"`
	BackoffMax     float64       `yaml:"backoff_max" mapstructure:"backoff_max"`
	HostRate       float64       `yaml:"host_rate" mapstructure:"host_rate"`
	BlockThreshold int           `yaml:"block_threshold" mapstructure:"block_threshold"`
	BlockCooldown  time.Duration `yaml:"block_cooldown" mapstructure:"block_cooldown"`
	UserAgents     []string      `yaml:"user_agents" mapstructure:"user_agents"`
}

// Units converts a multiple of TimeUnit to a duration.
func (f FetchConfig) Units(n float64) time.Duration {
	return time.Duration(n * float64(f.TimeUnit))
}

// ScheduleConfig configures the job scheduler.
type ScheduleConfig struct {
	Timezone string      `yaml:"timezone" mapstructure:"timezone"`
	CatchUp  bool        `yaml:"catch_up" mapstructure:"catch_up"`
	Jobs     []JobConfig `yaml:"jobs" mapstructure:"jobs"`
}

// JobConfig binds an adapter to a cron trigger.
type JobConfig struct {
	ID       string   `yaml:"id" mapstructure:"id"`
	Name     string   `yaml:"name" mapstructure:"name"`
	Adapter  string   `yaml:"adapter" mapstructure:"adapter"`
	Source   string   `yaml:"source" mapstructure:"source"`
	Cron     string   `yaml:"cron" mapstructure:"cron"`
	Cadence  string   `yaml:"cadence" mapstructure:"cadence"`
	Disabled bool     `yaml:"disabled" mapstructure:"disabled"`
	MaxItems int      `yaml:"max_items" mapstructure:"max_items"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
	Days     int      `yaml:"days" mapstructure:"days"`
}

// SourceConfig overrides an adapter's built-in origin settings. Keyed by
// source name (e.g. "新浪财经").
type SourceConfig struct {
	BaseURL  string   `yaml:"base_url" mapstructure:"base_url"`
	ListPath string   `yaml:"list_path" mapstructure:"list_path"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralAPIKey string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures periodic health checks of the harvest jobs.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinRuns              int     `yaml:"min_runs" mapstructure:"min_runs"`
}

// DefaultJobs is the reference schedule: aggregator reports weekly,
// corporate filings quarterly, regulator data monthly and media daily.
func DefaultJobs() []JobConfig {
	return []JobConfig{
		{ID: "research_scraper", Name: "研究报告爬虫", Adapter: "research", Source: "艾瑞咨询",
			Cron: "0 10 * * 1", Cadence: "weekly", MaxItems: 10},
		{ID: "corporate_scraper", Name: "上市公司财报爬虫", Adapter: "corporate", Source: "蚂蚁集团",
			Cron: "0 10 5 1,4,7,10 *", Cadence: "quarterly", MaxItems: 3},
		{ID: "official_scraper", Name: "官方监管数据爬虫", Adapter: "regulator", Source: "中国人民银行",
			Cron: "0 10 15 * *", Cadence: "monthly", MaxItems: 5},
		{ID: "media_scraper", Name: "财经媒体爬虫", Adapter: "media", Source: "新浪财经",
			Cron: "0 9 * * *", Cadence: "daily", MaxItems: 10, Keywords: []string{"消费金融"}, Days: 3},
	}
}

// Validate checks the fields the given mode depends on. Modes are
// "run", "schedule" and "serve"; serve implies schedule.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Fetch.MaxRetries < 1 {
		errs = append(errs, "fetch.max_retries must be >= 1")
	}
	if c.Fetch.PaceMin < 0 || c.Fetch.PaceMin > c.Fetch.PaceMax {
		errs = append(errs, "fetch.pace_min must be between 0 and fetch.pace_max")
	}
	if c.Fetch.BackoffMin < 0 || c.Fetch.BackoffMin > c.Fetch.BackoffMax {
		errs = append(errs, "fetch.backoff_min must be between 0 and fetch.backoff_max")
	}

	switch mode {
	case "run":
	case "schedule", "serve":
		errs = append(errs, c.validateSchedule()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSchedule() []string {
	var errs []string
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("schedule.timezone %q is invalid", c.Schedule.Timezone))
	}
	seen := make(map[string]bool, len(c.Schedule.Jobs))
	for _, j := range c.Schedule.Jobs {
		if j.ID == "" || j.Adapter == "" || j.Cron == "" {
			errs = append(errs, fmt.Sprintf("schedule job %q needs id, adapter and cron", j.ID))
			continue
		}
		if seen[j.ID] {
			errs = append(errs, fmt.Sprintf("schedule job id %q is duplicated", j.ID))
		}
		seen[j.ID] = true
	}
	return errs
}

func (c *Config) validateMonitoring() []string {
	var errs []string
	m := c.Monitoring
	if m.CheckIntervalSecs <= 0 {
		errs = append(errs, "monitoring.check_interval_secs must be > 0")
	}
	if m.LookbackWindowHours <= 0 {
		errs = append(errs, "monitoring.lookback_window_hours must be > 0")
	}
	if m.FailureRateThreshold <= 0 || m.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be in (0, 1]")
	}
	return errs
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.time_unit", "1s")
	v.SetDefault("fetch.pace_min", 1)
	v.SetDefault("fetch.pace_max", 3)
	v.SetDefault("fetch.backoff_min", 5)
	v.SetDefault("fetch.backoff_max", 10)
	v.SetDefault("fetch.host_rate", 0.5)
	v.SetDefault("fetch.block_threshold", 3)
	v.SetDefault("fetch.block_cooldown", "30m")
	v.SetDefault("schedule.timezone", "Asia/Shanghai")
	v.SetDefault("schedule.catch_up", false)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_runs", 3)

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
	if len(cfg.Schedule.Jobs) == 0 {
		cfg.Schedule.Jobs = DefaultJobs()
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

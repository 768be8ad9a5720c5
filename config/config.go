package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig     `yaml:"http"`
	Database      DatabaseConfig `yaml:"database"`
	Redis         RedisConfig    `yaml:"redis"`
	Kafka         KafkaConfig    `yaml:"kafka"`
	Log           LogConfig      `yaml:"log"`
	Domestic      UpstreamConfig `yaml:"domestic"`
	International UpstreamConfig `yaml:"international"`
	Sync          SyncConfig     `yaml:"sync"`
	Cache         CacheConfig    `yaml:"cache"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	SyncRequestsTopic string   `yaml:"sync_requests_topic"`
	SyncEventsTopic   string   `yaml:"sync_events_topic"`
	GroupID           string   `yaml:"group_id"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UpstreamConfig describes one external provider. Domestic uses ClientID/ClientSecret
// against TokenURL, international uses AppID/AppKey.
type UpstreamConfig struct {
	BaseURL           string        `yaml:"base_url"`
	TokenURL          string        `yaml:"token_url"`
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	AppID             string        `yaml:"app_id"`
	AppKey            string        `yaml:"app_key"`
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RateLimitDelay    time.Duration `yaml:"rate_limit_delay"`
	MaxJitter         time.Duration `yaml:"max_jitter"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type SyncConfig struct {
	DomesticAirports  []string       `yaml:"domestic_airports"`
	TargetAirlines    []string       `yaml:"target_airlines"`
	MinResults        int            `yaml:"min_results"`
	Workers           int            `yaml:"workers"`
	JobTimeout        time.Duration  `yaml:"job_timeout"`
	TokenSafetyMargin time.Duration  `yaml:"token_safety_margin"`
	ScheduleInterval  time.Duration  `yaml:"schedule_interval"`
	DaysAhead         int            `yaml:"days_ahead"`
	Routes            []domain.Route `yaml:"routes"`
}

type CacheConfig struct {
	SearchTTL    time.Duration `yaml:"search_ttl"`
	ReferenceTTL time.Duration `yaml:"reference_ttl"`
	Bypass       bool          `yaml:"bypass"`
}

var DefaultDomesticAirports = []string{"TPE", "TSA", "RMQ", "KHH", "TNN", "CYI", "HUN", "TTT", "KNH", "MZG", "LZN", "MFK", "KYD", "GNI", "WOT", "CMJ"}

var DefaultTargetAirlines = []string{"AE", "B7", "BR", "CI", "CX", "DA", "IT", "JL", "JX", "OZ"}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DOMESTIC_CLIENT_ID"); v != "" {
		c.Domestic.ClientID = v
	}
	if v := os.Getenv("DOMESTIC_CLIENT_SECRET"); v != "" {
		c.Domestic.ClientSecret = v
	}
	if v := os.Getenv("INTERNATIONAL_APP_ID"); v != "" {
		c.International.AppID = v
	}
	if v := os.Getenv("INTERNATIONAL_APP_KEY"); v != "" {
		c.International.AppKey = v
	}
	if v := os.Getenv("SEARCH_CACHE_BYPASS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Bypass = b
		}
	}
}

func (c *Config) ApplyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Kafka.SyncRequestsTopic == "" {
		c.Kafka.SyncRequestsTopic = "flight-sync-requests"
	}
	if c.Kafka.SyncEventsTopic == "" {
		c.Kafka.SyncEventsTopic = "flight-sync-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "flightsync-worker"
	}
	if c.Domestic.BaseURL == "" {
		c.Domestic.BaseURL = "https://tdx.transportdata.tw/api/basic"
	}
	if c.Domestic.TokenURL == "" {
		c.Domestic.TokenURL = "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"
	}
	if c.International.BaseURL == "" {
		c.International.BaseURL = "https://api.flightstats.com/flex"
	}
	c.Domestic.applyDefaults()
	c.International.applyDefaults()

	s := &c.Sync
	if len(s.DomesticAirports) == 0 {
		s.DomesticAirports = DefaultDomesticAirports
	}
	if len(s.TargetAirlines) == 0 {
		s.TargetAirlines = DefaultTargetAirlines
	}
	if s.MinResults <= 0 {
		s.MinResults = 3
	}
	if s.Workers == 0 {
		s.Workers = 4
	}
	if s.JobTimeout <= 0 {
		s.JobTimeout = 60 * time.Second
	}
	if s.TokenSafetyMargin <= 0 {
		s.TokenSafetyMargin = 5 * time.Minute
	}
	if s.ScheduleInterval <= 0 {
		s.ScheduleInterval = time.Hour
	}
	if s.DaysAhead <= 0 {
		s.DaysAhead = 1
	}

	if c.Cache.SearchTTL <= 0 {
		c.Cache.SearchTTL = time.Hour
	}
	if c.Cache.ReferenceTTL <= 0 {
		c.Cache.ReferenceTTL = 6 * time.Hour
	}
}

func (u *UpstreamConfig) applyDefaults() {
	if u.MaxRetries <= 0 {
		u.MaxRetries = 3
	}
	if u.BaseDelay <= 0 {
		u.BaseDelay = time.Second
	}
	if u.MaxDelay <= 0 {
		u.MaxDelay = 30 * time.Second
	}
	if u.RateLimitDelay <= 0 {
		u.RateLimitDelay = 10 * time.Second
	}
	if u.MaxJitter <= 0 {
		u.MaxJitter = 2 * time.Second
	}
	if u.RequestTimeout <= 0 {
		u.RequestTimeout = 20 * time.Second
	}
	if u.RequestsPerSecond <= 0 {
		u.RequestsPerSecond = 5
	}
	if u.Burst <= 0 {
		u.Burst = 1
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Domestic.ClientID == "" || c.Domestic.ClientSecret == "" {
		errs = append(errs, errors.New("domestic client_id and client_secret are required"))
	}
	if c.International.AppID == "" || c.International.AppKey == "" {
		errs = append(errs, errors.New("international app_id and app_key are required"))
	}
	if c.Sync.Workers <= 0 {
		errs = append(errs, fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers))
	}
	return errors.Join(errs...)
}

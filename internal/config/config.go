package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
	// AllowedOrigins restricts CORS; empty keeps the API open
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	AdminUsername    string        `mapstructure:"admin_username"`
	AdminPassword    string        `mapstructure:"admin_password"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	LoginWindow      time.Duration `mapstructure:"login_window"`
}

// DirectoryConfig holds LDAP directory configuration
type DirectoryConfig struct {
	URL           string `mapstructure:"url"`
	BindDN        string `mapstructure:"bind_dn"`
	BindPassword  string `mapstructure:"bind_password"`
	BaseDN        string `mapstructure:"base_dn"`
	UserFilter    string `mapstructure:"user_filter"`
	RequiredGroup string `mapstructure:"required_group"`
	EmailAttr     string `mapstructure:"email_attr"`
}

// Enabled reports whether a directory server is configured
func (c *DirectoryConfig) Enabled() bool {
	return c.URL != ""
}

// SMTPConfig holds mail relay configuration
type SMTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	DefaultEmail string `mapstructure:"default_email"`
}

// PushConfig holds push notification (ntfy) configuration
type PushConfig struct {
	ServerURL    string `mapstructure:"server_url"`
	DefaultTopic string `mapstructure:"default_topic"`
}

// IGDBConfig holds IGDB provider configuration
type IGDBConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	APIURL       string `mapstructure:"api_url"`
}

// RAWGConfig holds RAWG provider configuration
type RAWGConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// GamesDBConfig holds TheGamesDB provider configuration
type GamesDBConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// ProvidersConfig holds catalog provider configurations
type ProvidersConfig struct {
	IGDB    IGDBConfig    `mapstructure:"igdb"`
	RAWG    RAWGConfig    `mapstructure:"rawg"`
	GamesDB GamesDBConfig `mapstructure:"gamesdb"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SteamConfig holds Steam store configuration
type SteamConfig struct {
	StoreAPIURL string `mapstructure:"store_api_url"`
	CountryCode string `mapstructure:"country_code"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// RateLimitConfig holds per-provider rate limit settings
type RateLimitConfig struct {
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxQueueTime      time.Duration `mapstructure:"max_queue_time"`
}

// RateLimiterConfig holds rate limiter proxy configuration
type RateLimiterConfig struct {
	MaxWorkers   int                        `mapstructure:"max_workers"`
	MaxQueueSize int                        `mapstructure:"max_queue_size"`
	Providers    map[string]RateLimitConfig `mapstructure:"providers"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	WorkerPoolSize  int `mapstructure:"pool_size"`
	WorkerQueueSize int `mapstructure:"queue_size"`
}

// ReleaseSweeperConfig holds configuration for the release reminder sweeper
type ReleaseSweeperConfig struct {
	Hour   int          `mapstructure:"hour"` // hour of day (UTC) for the daily sweep
	Worker WorkerConfig `mapstructure:"worker"`
}

// PriceSweeperConfig holds configuration for the price refresh sweeper
type PriceSweeperConfig struct {
	Weekday int          `mapstructure:"weekday"` // 0=Sunday .. 6=Saturday
	Hour    int          `mapstructure:"hour"`
	Worker  WorkerConfig `mapstructure:"worker"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Directory  DirectoryConfig   `mapstructure:"directory"`
	SMTP       SMTPConfig        `mapstructure:"smtp"`
	Push       PushConfig        `mapstructure:"push"`
	Providers  ProvidersConfig   `mapstructure:"providers"`
	Steam      SteamConfig       `mapstructure:"steam"`
	NATS       NATSConfig        `mapstructure:"nats"`
	RateLimit  RateLimiterConfig `mapstructure:"rate_limiter"`
}

// SweeperConfig holds configuration for the sweeper program
type SweeperConfig struct {
	BaseConfig     `mapstructure:",squash"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Directory      DirectoryConfig      `mapstructure:"directory"`
	SMTP           SMTPConfig           `mapstructure:"smtp"`
	Push           PushConfig           `mapstructure:"push"`
	Steam          SteamConfig          `mapstructure:"steam"`
	NATS           NATSConfig           `mapstructure:"nats"`
	RateLimit      RateLimiterConfig    `mapstructure:"rate_limiter"`
	ReleaseSweeper ReleaseSweeperConfig `mapstructure:"release_sweeper"`
	PriceSweeper   PriceSweeperConfig   `mapstructure:"price_sweeper"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	setCommonDefaults(v)
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.login_max_attempts", 5)
	v.SetDefault("auth.login_window", "15m")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	return &config, nil
}

// LoadSweeperConfig loads configuration for the sweeper program
func LoadSweeperConfig(configFile string, envPath string) (*SweeperConfig, error) {
	v := configureViper("sweeper", configFile, envPath)

	// Set defaults
	setCommonDefaults(v)
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("release_sweeper.hour", 8)
	v.SetDefault("release_sweeper.worker.pool_size", 10)
	v.SetDefault("release_sweeper.worker.queue_size", 100)
	v.SetDefault("price_sweeper.weekday", 1) // Monday
	v.SetDefault("price_sweeper.hour", 3)
	v.SetDefault("price_sweeper.worker.pool_size", 5)
	v.SetDefault("price_sweeper.worker.queue_size", 100)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg SweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if cfg.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}

	return &cfg, nil
}

// setCommonDefaults sets defaults shared by every program
func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "LIBRARY_EVENTS")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("push.server_url", "https://ntfy.sh")
	v.SetDefault("directory.email_attr", "mail")
	v.SetDefault("providers.timeout", "10s")
	v.SetDefault("providers.igdb.token_url", "https://id.twitch.tv/oauth2/token")
	v.SetDefault("providers.igdb.api_url", "https://api.igdb.com/v4")
	v.SetDefault("providers.rawg.api_url", "https://api.rawg.io/api")
	v.SetDefault("providers.gamesdb.api_url", "https://api.thegamesdb.net/v1")
	v.SetDefault("steam.store_api_url", "https://store.steampowered.com/api")
	v.SetDefault("steam.country_code", "de")
	v.SetDefault("rate_limiter.providers.igdb.requests_per_second", 4)
	v.SetDefault("rate_limiter.providers.rawg.requests_per_second", 5)
	v.SetDefault("rate_limiter.providers.gamesdb.requests_per_second", 1)
	v.SetDefault("rate_limiter.providers.steam.requests_per_second", 1)
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/sweeper/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("QUESTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_secret",
		"auth.token_ttl",
		"auth.admin_username",
		"auth.admin_password",
		"auth.login_max_attempts",
		"auth.login_window",
		// Directory
		"directory.url",
		"directory.bind_dn",
		"directory.bind_password",
		"directory.base_dn",
		"directory.user_filter",
		"directory.required_group",
		"directory.email_attr",
		// SMTP
		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"smtp.default_email",
		// Push
		"push.server_url",
		"push.default_topic",
		// Providers
		"providers.timeout",
		"providers.igdb.client_id",
		"providers.igdb.client_secret",
		"providers.igdb.token_url",
		"providers.igdb.api_url",
		"providers.rawg.api_url",
		"providers.rawg.api_key",
		"providers.gamesdb.api_url",
		"providers.gamesdb.api_key",
		// Steam
		"steam.store_api_url",
		"steam.country_code",
		// Rate limiter
		"rate_limiter.max_workers",
		"rate_limiter.max_queue_size",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Sweepers
		"release_sweeper.hour",
		"release_sweeper.worker.pool_size",
		"release_sweeper.worker.queue_size",
		"price_sweeper.weekday",
		"price_sweeper.hour",
		"price_sweeper.worker.pool_size",
		"price_sweeper.worker.queue_size",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

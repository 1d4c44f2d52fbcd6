package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds every application setting.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds unified Redis connection settings.
// Supported modes: single, sentinel, cluster.
type RedisConfig struct {
	// Mode: "single" (default), "sentinel" or "cluster".
	Mode string `mapstructure:"mode"`

	// Addrs: Redis addresses (host:port), used by all modes. For 'single',
	// the first entry wins when the list is non-empty.
	Addrs []string `mapstructure:"addrs"`

	// Addr: single-mode address, used when Addrs is empty.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: master name for sentinel mode.
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	AccessTokenMinutes int    `mapstructure:"access_token_minutes"`
	RefreshTokenDays   int    `mapstructure:"refresh_token_days"`
}

// AuthConfig holds session and frontend hand-off settings.
type AuthConfig struct {
	// SessionLimit caps active refresh sessions per user.
	SessionLimit int `mapstructure:"session_limit"`
	// FrontendURL is where the callback redirects with the access token.
	FrontendURL string `mapstructure:"frontend_url"`
	// CookieDomain for the refresh cookie; empty means request host.
	CookieDomain string `mapstructure:"cookie_domain"`
}

// OAuthConfig holds per-provider credentials. A provider with an empty
// client id is simply not registered.
type OAuthConfig struct {
	Google ProviderCredentials `mapstructure:"google"`
	GitHub ProviderCredentials `mapstructure:"github"`
}

// ProviderCredentials identifies this application to one provider.
type ProviderCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// CORSConfig holds the allowed SPA origins.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AccessTokenExpiry returns the configured access token lifetime.
func (j *JWTConfig) AccessTokenExpiry() time.Duration {
	if j.AccessTokenMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(j.AccessTokenMinutes) * time.Minute
}

// RefreshTokenExpiry returns the configured refresh token lifetime.
func (j *JWTConfig) RefreshTokenExpiry() time.Duration {
	if j.RefreshTokenDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(j.RefreshTokenDays) * 24 * time.Hour
}

// PostgresConnectionString builds the PostgreSQL DSN.
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from the optional YAML file and explicitly
// bound environment variables, then validates required keys.
func Load(configPath string) (*Config, error) {
	vip := viper.New()

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.access_token_minutes", "JWT_ACCESS_TOKEN_MINUTES")
	vip.BindEnv("jwt.refresh_token_days", "JWT_REFRESH_TOKEN_DAYS")

	vip.BindEnv("auth.session_limit", "AUTH_SESSION_LIMIT")
	vip.BindEnv("auth.frontend_url", "AUTH_FRONTEND_URL")
	vip.BindEnv("auth.cookie_domain", "AUTH_COOKIE_DOMAIN")

	vip.BindEnv("oauth.google.client_id", "OAUTH_GOOGLE_CLIENT_ID")
	vip.BindEnv("oauth.google.client_secret", "OAUTH_GOOGLE_CLIENT_SECRET")
	vip.BindEnv("oauth.google.redirect_url", "OAUTH_GOOGLE_REDIRECT_URL")
	vip.BindEnv("oauth.github.client_id", "OAUTH_GITHUB_CLIENT_ID")
	vip.BindEnv("oauth.github.client_secret", "OAUTH_GITHUB_CLIENT_SECRET")
	vip.BindEnv("oauth.github.redirect_url", "OAUTH_GITHUB_REDIRECT_URL")

	vip.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.readtimeout", "SERVER_READTIMEOUT")
	vip.BindEnv("server.writetimeout", "SERVER_WRITETIMEOUT")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Config file %q not found, relying on environment variables.", configPath)
			} else {
				log.Printf("Warning: could not read config file %q: %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Loaded configuration ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("JWT Secret Set: %t", cfg.JWT.Secret != "")
		log.Printf("Google OAuth Configured: %t", cfg.OAuth.Google.ClientID != "")
		log.Printf("GitHub OAuth Configured: %t", cfg.OAuth.GitHub.ClientID != "")
		log.Printf("Frontend URL: %s", cfg.Auth.FrontendURL)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("----------------------------")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Auth.FrontendURL == "" {
		return fmt.Errorf("frontend URL is required for the login callback (check AUTH_FRONTEND_URL env var)")
	}
	if cfg.OAuth.Google.ClientID == "" && cfg.OAuth.GitHub.ClientID == "" {
		return fmt.Errorf("at least one OAuth provider must be configured (check OAUTH_GOOGLE_CLIENT_ID / OAUTH_GITHUB_CLIENT_ID env vars)")
	}

	// The API issues credentialed responses, and a wildcard origin with
	// credentials is rejected by browsers anyway. Fail at startup instead.
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("wildcard CORS origin is not allowed with credentialed requests; list explicit origins in CORS_ALLOWED_ORIGINS")
		}
	}

	return nil
}

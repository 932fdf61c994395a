// Package config provides application configuration management following SOLID principles.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Supported state token stores.
const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

// minSecretLength mirrors the session codec's requirement.
const minSecretLength = 32

// minTokenTTL is the JWT NumericDate precision; shorter lifetimes expire on issue.
const minTokenTTL = time.Second

// ServerConfig interface for server-specific configuration.
type ServerConfig interface {
	GetServerPort() string
	GetReadTimeout() time.Duration
	GetWriteTimeout() time.Duration
	GetIdleTimeout() time.Duration
	GetCORSAllowedOrigins() []string
	GetAuthRateLimit() int
}

// SecurityConfig interface for session token configuration.
type SecurityConfig interface {
	GetJWTSecret() string
	GetJWTExpiration() time.Duration
}

// OAuthConfig interface for the identity provider and login flow.
type OAuthConfig interface {
	GetGitHubClientID() string
	GetGitHubClientSecret() string
	GetGitHubCallbackURL() string
	GetGitHubAuthURL() string
	GetGitHubTokenURL() string
	GetGitHubAPIURL() string
	GetOAuthHTTPTimeout() time.Duration
	GetStateTTL() time.Duration
	GetStateSweepInterval() time.Duration
}

// StateStoreConfig interface for the state token backend.
type StateStoreConfig interface {
	GetStateStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

// AppConfig implements all configuration interfaces.
type AppConfig struct {
	serverPort         string
	environment        string
	logLevel           string
	logFormat          string
	readTimeout        time.Duration
	writeTimeout       time.Duration
	idleTimeout        time.Duration
	corsAllowedOrigins []string
	authRateLimit      int

	jwtSecret          string
	jwtSecretGenerated bool
	jwtExpiration      time.Duration

	githubClientID     string
	githubClientSecret string
	githubCallbackURL  string
	githubAuthURL      string
	githubTokenURL     string
	githubAPIURL       string
	oauthHTTPTimeout   time.Duration
	stateTTL           time.Duration
	stateSweepInterval time.Duration

	stateStore    string
	redisAddr     string
	redisPassword string
	redisDB       int

	parseErrs []error
}

// SetDefaults registers every configuration key and its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENVIRONMENT", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("READ_TIMEOUT", "15s")
	v.SetDefault("WRITE_TIMEOUT", "15s")
	v.SetDefault("IDLE_TIMEOUT", "60s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("AUTH_RATE_LIMIT", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRY", "1h")

	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CALLBACK_URL", "http://localhost:3000/auth/github/callback")
	v.SetDefault("GITHUB_AUTH_URL", "")
	v.SetDefault("GITHUB_TOKEN_URL", "")
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("OAUTH_HTTP_TIMEOUT", "15s")
	v.SetDefault("STATE_TTL", "5m")
	v.SetDefault("STATE_SWEEP_INTERVAL", "1m")

	v.SetDefault("STATE_STORE", StateStoreMemory)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
}

// Load reads configuration from the environment, with optional .env files in baseDir.
// Real environment variables always win over file values.
func Load(baseDir string) (*AppConfig, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if err := loadEnvFiles(v, baseDir, v.GetString("ENVIRONMENT")); err != nil {
		return nil, err
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds an AppConfig from an already populated viper instance.
// A missing JWT secret outside production is replaced by a random one.
func FromViper(v *viper.Viper) *AppConfig {
	cfg := &AppConfig{
		serverPort:         v.GetString("PORT"),
		environment:        strings.ToLower(v.GetString("ENVIRONMENT")),
		logLevel:           v.GetString("LOG_LEVEL"),
		logFormat:          v.GetString("LOG_FORMAT"),
		readTimeout:        v.GetDuration("READ_TIMEOUT"),
		writeTimeout:       v.GetDuration("WRITE_TIMEOUT"),
		idleTimeout:        v.GetDuration("IDLE_TIMEOUT"),
		corsAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		authRateLimit:      v.GetInt("AUTH_RATE_LIMIT"),
		jwtSecret:          v.GetString("JWT_SECRET"),
		githubClientID:     v.GetString("GITHUB_CLIENT_ID"),
		githubClientSecret: v.GetString("GITHUB_CLIENT_SECRET"),
		githubCallbackURL:  v.GetString("GITHUB_CALLBACK_URL"),
		githubAuthURL:      v.GetString("GITHUB_AUTH_URL"),
		githubTokenURL:     v.GetString("GITHUB_TOKEN_URL"),
		githubAPIURL:       v.GetString("GITHUB_API_URL"),
		oauthHTTPTimeout:   v.GetDuration("OAUTH_HTTP_TIMEOUT"),
		stateStore:         strings.ToLower(v.GetString("STATE_STORE")),
		redisAddr:          v.GetString("REDIS_ADDR"),
		redisPassword:      v.GetString("REDIS_PASSWORD"),
		redisDB:            v.GetInt("REDIS_DB"),
	}

	cfg.jwtExpiration = cfg.parseDuration(v, "JWT_EXPIRY")
	cfg.stateTTL = cfg.parseDuration(v, "STATE_TTL")
	cfg.stateSweepInterval = cfg.parseDuration(v, "STATE_SWEEP_INTERVAL")

	if cfg.jwtSecret == "" && cfg.environment != EnvProduction {
		cfg.jwtSecret = generateSecureJWTSecret()
		cfg.jwtSecretGenerated = true
	}

	return cfg
}

// parseDuration reads key as a Go duration ("90m", "1h30m").
// A bare integer is a number of seconds. Failures are reported by Validate.
func (c *AppConfig) parseDuration(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return 0
	}
	return d
}

// GetServerPort returns the server port configuration.
func (c *AppConfig) GetServerPort() string {
	return c.serverPort
}

// GetEnvironment returns the application environment configuration.
func (c *AppConfig) GetEnvironment() string {
	return c.environment
}

// GetLogLevel returns the log level configuration.
func (c *AppConfig) GetLogLevel() string {
	return c.logLevel
}

// GetLogFormat returns the log format ("json" or "text").
func (c *AppConfig) GetLogFormat() string {
	return c.logFormat
}

// IsProduction returns true if the application is running in production environment.
func (c *AppConfig) IsProduction() bool {
	return c.environment == EnvProduction
}

// GetReadTimeout returns the server read timeout configuration.
func (c *AppConfig) GetReadTimeout() time.Duration {
	return c.readTimeout
}

// GetWriteTimeout returns the server write timeout configuration.
func (c *AppConfig) GetWriteTimeout() time.Duration {
	return c.writeTimeout
}

// GetIdleTimeout returns the server idle timeout configuration.
func (c *AppConfig) GetIdleTimeout() time.Duration {
	return c.idleTimeout
}

// GetCORSAllowedOrigins returns the allowed CORS origins.
func (c *AppConfig) GetCORSAllowedOrigins() []string {
	out := make([]string, len(c.corsAllowedOrigins))
	copy(out, c.corsAllowedOrigins)
	return out
}

// GetAuthRateLimit returns the allowed /auth requests per minute per client; 0 disables limiting.
func (c *AppConfig) GetAuthRateLimit() int {
	return c.authRateLimit
}

// GetJWTSecret returns the JWT secret configuration.
func (c *AppConfig) GetJWTSecret() string {
	return c.jwtSecret
}

// JWTSecretGenerated reports whether the secret was generated at startup.
// Tokens signed with a generated secret do not survive a restart.
func (c *AppConfig) JWTSecretGenerated() bool {
	return c.jwtSecretGenerated
}

// GetJWTExpiration returns the session token lifetime.
func (c *AppConfig) GetJWTExpiration() time.Duration {
	return c.jwtExpiration
}

// GetGitHubClientID returns the GitHub OAuth application id.
func (c *AppConfig) GetGitHubClientID() string {
	return c.githubClientID
}

// GetGitHubClientSecret returns the GitHub OAuth application secret.
func (c *AppConfig) GetGitHubClientSecret() string {
	return c.githubClientSecret
}

// GetGitHubCallbackURL returns the registered callback URL.
func (c *AppConfig) GetGitHubCallbackURL() string {
	return c.githubCallbackURL
}

// GetGitHubAuthURL returns the authorization endpoint override, empty for github.com.
func (c *AppConfig) GetGitHubAuthURL() string {
	return c.githubAuthURL
}

// GetGitHubTokenURL returns the token endpoint override, empty for github.com.
func (c *AppConfig) GetGitHubTokenURL() string {
	return c.githubTokenURL
}

// GetGitHubAPIURL returns the REST API base URL override, empty for api.github.com.
func (c *AppConfig) GetGitHubAPIURL() string {
	return c.githubAPIURL
}

// GetOAuthHTTPTimeout returns the timeout for calls to the provider.
func (c *AppConfig) GetOAuthHTTPTimeout() time.Duration {
	return c.oauthHTTPTimeout
}

// GetStateTTL returns the state token lifetime.
func (c *AppConfig) GetStateTTL() time.Duration {
	return c.stateTTL
}

// GetStateSweepInterval returns how often expired state tokens are swept.
func (c *AppConfig) GetStateSweepInterval() time.Duration {
	return c.stateSweepInterval
}

// GetStateStore returns the state token backend name.
func (c *AppConfig) GetStateStore() string {
	return c.stateStore
}

// GetRedisAddr returns the redis address.
func (c *AppConfig) GetRedisAddr() string {
	return c.redisAddr
}

// GetRedisPassword returns the redis password.
func (c *AppConfig) GetRedisPassword() string {
	return c.redisPassword
}

// GetRedisDB returns the redis database index.
func (c *AppConfig) GetRedisDB() int {
	return c.redisDB
}

// Validate checks if the configuration is valid.
func (c *AppConfig) Validate() error {
	if len(c.parseErrs) > 0 {
		return errors.Join(c.parseErrs...)
	}

	if c.serverPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.environment != EnvDevelopment && c.environment != EnvStaging && c.environment != EnvProduction {
		return fmt.Errorf("environment must be one of: development, staging, production")
	}

	if c.jwtSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set in %s", c.environment)
	}

	if len(c.jwtSecret) < minSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters long", minSecretLength)
	}

	if c.IsProduction() && isDefaultSecret(c.jwtSecret) {
		return fmt.Errorf("default JWT secrets are not allowed in production")
	}

	if c.jwtExpiration < minTokenTTL {
		return fmt.Errorf("JWT_EXPIRY must be at least %s", minTokenTTL)
	}

	if c.authRateLimit < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT cannot be negative")
	}

	if c.stateTTL < minTokenTTL {
		return fmt.Errorf("STATE_TTL must be at least %s", minTokenTTL)
	}

	if c.IsProduction() && (c.githubClientID == "" || c.githubClientSecret == "") {
		return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required in production")
	}

	if (c.githubAuthURL == "") != (c.githubTokenURL == "") {
		return fmt.Errorf("GITHUB_AUTH_URL and GITHUB_TOKEN_URL must be set together")
	}

	switch c.stateStore {
	case StateStoreMemory:
	case StateStoreRedis:
		if c.redisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STATE_STORE=redis")
		}
	default:
		return fmt.Errorf("STATE_STORE must be one of: memory, redis")
	}

	return nil
}

// isDefaultSecret reports whether secret looks like a placeholder copied from an example file.
func isDefaultSecret(secret string) bool {
	if secret == "" {
		return false
	}

	lower := strings.ToLower(secret)
	for _, marker := range []string{"secret", "changeme", "placeholder", "example", "sample"} {
		if strings.HasPrefix(lower, marker) || strings.HasPrefix(lower, "your-"+marker) ||
			strings.HasPrefix(lower, "super-"+marker) || strings.HasPrefix(lower, "jwt-"+marker) {
			return true
		}
	}
	return strings.HasPrefix(lower, "your-super-secret") || strings.HasPrefix(lower, "roomgate-development")
}

// generateSecureJWTSecret returns 48 random bytes, base64 encoded.
func generateSecureJWTSecret() string {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate JWT secret: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

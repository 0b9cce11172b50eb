package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds all configuration required by the API process.
// Values come from the environment (a .env file is loaded by main in local
// runs). No business logic should read raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Google    GoogleConfig
	SMTP      SMTPConfig
	RabbitMQ  RabbitMQConfig
	Scheduler SchedulerConfig
	Cache     CacheConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV" envDefault:"local"`
	Port int    `env:"APP_PORT" envDefault:"8080"`
	// PublicURL prefixes the links sent by email.
	PublicURL string `env:"APP_PUBLIC_URL" envDefault:"http://localhost:8080"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`

	// AutoMigrate applies the embedded schema at startup.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE"`
}

// RedisConfig is optional; without a host the sweeper runs unlocked.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TTL"`
}

type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	TokenURL     string `env:"GOOGLE_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	// CalendarEndpoint overrides the Calendar API base URL (tests, proxies).
	CalendarEndpoint string `env:"GOOGLE_CALENDAR_ENDPOINT"`
}

// SMTPConfig is optional; without a host emails are logged, not sent.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

type RabbitMQConfig struct {
	Enabled bool   `env:"RABBITMQ_ENABLED"`
	URI     string `env:"RABBITMQ_URI"`
	Queue   string `env:"RABBITMQ_QUEUE" envDefault:"call-runs"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `env:"SCHEDULER_SWEEP_INTERVAL" envDefault:"5m"`
	Concurrency   int           `env:"SCHEDULER_CONCURRENCY" envDefault:"4"`
	RunTimeout    time.Duration `env:"SCHEDULER_RUN_TIMEOUT" envDefault:"1m"`
	LockTTL       time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"2m"`
	// PolicyFile is an optional TOML scheduling policy.
	PolicyFile string `env:"SCHEDULER_POLICY_FILE"`
	// Disabled turns off the background sweep loop; runs are then only
	// triggered through the API.
	Disabled bool `env:"SCHEDULER_DISABLED"`
}

// CacheConfig sizes the in-process cache of calendar-owner lookups.
type CacheConfig struct {
	Enabled bool          `env:"CACHE_ENABLED" envDefault:"true"`
	Size    int           `env:"CACHE_SIZE" envDefault:"1024"`
	TTL     time.Duration `env:"CACHE_TTL" envDefault:"30s"`
}

// Load parses the process environment and validates it.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom is Load over an explicit environment, for tests and tooling.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.Parse(&c, opts); err != nil {
		return Config{}, err
	}
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills environment-dependent
// defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if u, err := url.Parse(c.App.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_PUBLIC_URL must be an absolute URL, got %q", c.App.PublicURL))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required in production"))
		}
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.URI == "" {
			errs = append(errs, errors.New("RABBITMQ_URI is required when RABBITMQ_ENABLED is set"))
		}
		if c.RabbitMQ.Queue == "" {
			errs = append(errs, errors.New("RABBITMQ_QUEUE must not be empty"))
		}
	}

	if c.Scheduler.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_SWEEP_INTERVAL must be positive, got %s", c.Scheduler.SweepInterval))
	}
	if c.Scheduler.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_CONCURRENCY must be positive, got %d", c.Scheduler.Concurrency))
	}

	if c.Cache.Enabled && (c.Cache.Size <= 0 || c.Cache.TTL <= 0) {
		errs = append(errs, errors.New("CACHE_SIZE and CACHE_TTL must be positive when CACHE_ENABLED is set"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) SMTPEnabled() bool { return c.SMTP.Host != "" }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

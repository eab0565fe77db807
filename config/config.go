package config

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/repository"
)

const EnvProduction = "production"

// Config is the service configuration
type Config struct {
	App      App      `koanf:"app" json:"app"`
	Database Database `koanf:"database" json:"database"`
	JWT      JWT      `koanf:"jwt" json:"jwt"`
	Redis    Redis    `koanf:"redis" json:"redis"`
	Security Security `koanf:"security" json:"security"`
	Admin    Admin    `koanf:"admin" json:"admin"`
}

type App struct {
	Env        string `koanf:"env" json:"env"`
	Port       int    `koanf:"port" json:"port"`
	CORSOrigin string `koanf:"cors_origin" json:"cors_origin"`
	LogLevel   string `koanf:"log_level" json:"log_level"`
	LogFormat  string `koanf:"log_format" json:"log_format"`
	// ShutdownTimeoutExpression is a time.ParseDuration expression
	ShutdownTimeoutExpression string `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

type Database struct {
	Driver       string `koanf:"driver" json:"driver"`
	DSN          string `koanf:"dsn" json:"-"`
	MaxOpenConns int    `koanf:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns" json:"max_idle_conns"`
}

type JWT struct {
	SigningKey                string   `koanf:"signing_key" json:"-"`
	Issuer                    string   `koanf:"issuer" json:"issuer"`
	Audience                  []string `koanf:"audience" json:"audience"`
	AccessTokenTTLExpression  string   `koanf:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTLExpression string   `koanf:"refresh_token_ttl" json:"refresh_token_ttl"`
	ResetTokenTTLExpression   string   `koanf:"reset_token_ttl" json:"reset_token_ttl"`
}

type Redis struct {
	URL      string `koanf:"url" json:"-"`
	Addr     string `koanf:"addr" json:"addr"`
	Password string `koanf:"password" json:"-"`
	DB       int    `koanf:"db" json:"db"`
}

type Security struct {
	LoginMaxAttempts          int    `koanf:"login_max_attempts" json:"login_max_attempts"`
	LoginLockWindowExpression string `koanf:"login_lock_window" json:"login_lock_window"`
	SweepIntervalExpression   string `koanf:"token_sweep_interval" json:"token_sweep_interval"`
	BcryptCost                int    `koanf:"bcrypt_cost" json:"bcrypt_cost"`
}

type Admin struct {
	Email     string `koanf:"email" json:"email"`
	Password  string `koanf:"password" json:"-"`
	FirstName string `koanf:"first_name" json:"first_name"`
	LastName  string `koanf:"last_name" json:"last_name"`
}

var _ auth.Config = (*Config)(nil)

// Defaults returns a configuration suitable for local development
func Defaults() *Config {
	return &Config{
		App: App{
			Env:                       "development",
			Port:                      3000,
			CORSOrigin:                "*",
			LogLevel:                  "info",
			LogFormat:                 "console",
			ShutdownTimeoutExpression: "10s",
		},
		Database: Database{
			Driver:       repository.DriverSQLite,
			DSN:          "file:tenant-auth.db?cache=shared&_fk=1",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		JWT: JWT{
			Issuer:                    "go-tenant-auth",
			Audience:                  []string{"go-tenant-auth"},
			AccessTokenTTLExpression:  "15m",
			RefreshTokenTTLExpression: "720h",
			ResetTokenTTLExpression:   "1h",
		},
		Security: Security{
			LoginMaxAttempts:          5,
			LoginLockWindowExpression: "15m",
			SweepIntervalExpression:   "1h",
			BcryptCost:                12,
		},
	}
}

// Validate will run validation rules
func (c *Config) Validate() error {
	minKey := 1
	if c.IsProduction() {
		minKey = 32
	}

	return auth.ValidateInput("invalid configuration", func() error {
		return validation.Errors{
			"app": validation.ValidateStruct(&c.App,
				validation.Field(&c.App.Port, validation.Required, validation.Min(1), validation.Max(65535)),
				validation.Field(&c.App.ShutdownTimeoutExpression, validation.By(durationRule)),
			),
			"database": validation.ValidateStruct(&c.Database,
				validation.Field(&c.Database.Driver, validation.Required, validation.In(repository.DriverSQLite, repository.DriverPostgres)),
				validation.Field(&c.Database.DSN, requiredIf(c.Database.Driver == repository.DriverPostgres)...),
			),
			"jwt": validation.ValidateStruct(&c.JWT,
				validation.Field(&c.JWT.SigningKey, validation.Required, validation.RuneLength(minKey, 0)),
				validation.Field(&c.JWT.Issuer, validation.Required),
				validation.Field(&c.JWT.AccessTokenTTLExpression, validation.Required, validation.By(durationRule)),
				validation.Field(&c.JWT.RefreshTokenTTLExpression, validation.Required, validation.By(durationRule)),
				validation.Field(&c.JWT.ResetTokenTTLExpression, validation.Required, validation.By(durationRule)),
			),
			"redis": validation.ValidateStruct(&c.Redis,
				validation.Field(&c.Redis.DB, validation.Min(0)),
			),
			"security": validation.ValidateStruct(&c.Security,
				validation.Field(&c.Security.LoginMaxAttempts, validation.Min(0)),
				validation.Field(&c.Security.LoginLockWindowExpression, validation.By(durationRule)),
				validation.Field(&c.Security.SweepIntervalExpression, validation.By(durationRule)),
			),
			"admin": validation.ValidateStruct(&c.Admin,
				validation.Field(&c.Admin.Email, is.Email),
				validation.Field(&c.Admin.Password, requiredIf(c.Admin.Email != "")...),
			),
		}.Filter()
	})
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

func (c *Config) GetSigningKey() string {
	return c.JWT.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.JWT.Issuer
}

func (c *Config) GetAudience() []string {
	return c.JWT.Audience
}

func (c *Config) GetAccessTokenTTL() time.Duration {
	return mustDuration(c.JWT.AccessTokenTTLExpression, 15*time.Minute)
}

func (c *Config) GetRefreshTokenTTL() time.Duration {
	return mustDuration(c.JWT.RefreshTokenTTLExpression, 720*time.Hour)
}

func (c *Config) GetResetTokenTTL() time.Duration {
	return mustDuration(c.JWT.ResetTokenTTLExpression, time.Hour)
}

func (c *Config) GetLoginMaxAttempts() int {
	return c.Security.LoginMaxAttempts
}

func (c *Config) GetLoginLockWindow() time.Duration {
	return mustDuration(c.Security.LoginLockWindowExpression, 15*time.Minute)
}

func (c *Config) GetSweepInterval() time.Duration {
	return mustDuration(c.Security.SweepIntervalExpression, time.Hour)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return mustDuration(c.App.ShutdownTimeoutExpression, 10*time.Second)
}

// GetDBConfig maps the database section to the repository options
func (c *Config) GetDBConfig() repository.DBConfig {
	return repository.DBConfig{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
	}
}

// GetRedisConfig reports the redis options and whether redis is enabled
func (c *Config) GetRedisConfig() (repository.RedisConfig, bool) {
	cfg := repository.RedisConfig{
		URL:      c.Redis.URL,
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
	return cfg, cfg.URL != "" || cfg.Addr != ""
}

// GetAdminSeed reports the bootstrap admin and whether one is configured
func (c *Config) GetAdminSeed() (auth.AdminSeed, bool) {
	return auth.AdminSeed{
		Email:     c.Admin.Email,
		Password:  c.Admin.Password,
		FirstName: c.Admin.FirstName,
		LastName:  c.Admin.LastName,
	}, c.Admin.Email != ""
}

func mustDuration(expr string, def time.Duration) time.Duration {
	if strings.TrimSpace(expr) == "" {
		return def
	}
	d, err := time.ParseDuration(expr)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func durationRule(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	if _, err := time.ParseDuration(expr); err != nil {
		return errors.New("must be a duration such as 15m or 1h")
	}
	return nil
}

func requiredIf(cond bool) []validation.Rule {
	if cond {
		return []validation.Rule{validation.Required}
	}
	return nil
}

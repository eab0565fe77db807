package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
)

// LookupFunc resolves an environment variable
type LookupFunc func(key string) (string, bool)

// Load reads .env into the process environment, loads the config container
// and overlays the documented environment variables. The result is
// validated.
func Load(ctx context.Context, logger glog.Logger) (*gconfig.Container[*Config], error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	container := gconfig.New(Defaults())
	if logger != nil {
		container = container.WithLogger(logger)
	}

	if err := container.Load(ctx); err != nil {
		return nil, err
	}

	cfg := container.Raw()
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return container, nil
}

// ApplyEnv overrides cfg with the environment variables that are set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.int("PORT", &cfg.App.Port)
	e.str("APP_ENV", &cfg.App.Env)
	e.str("LOG_LEVEL", &cfg.App.LogLevel)
	e.str("LOG_FORMAT", &cfg.App.LogFormat)
	e.str("CORS_ORIGIN", &cfg.App.CORSOrigin)
	e.str("SHUTDOWN_TIMEOUT", &cfg.App.ShutdownTimeoutExpression)

	e.str("DATABASE_DRIVER", &cfg.Database.Driver)
	e.str("DATABASE_URL", &cfg.Database.DSN)
	e.int("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	e.int("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)

	e.str("JWT_SECRET", &cfg.JWT.SigningKey)
	e.str("JWT_ISSUER", &cfg.JWT.Issuer)
	e.list("JWT_AUDIENCE", &cfg.JWT.Audience)
	e.str("ACCESS_TOKEN_TTL", &cfg.JWT.AccessTokenTTLExpression)
	e.str("REFRESH_TOKEN_TTL", &cfg.JWT.RefreshTokenTTLExpression)
	e.str("RESET_TOKEN_TTL", &cfg.JWT.ResetTokenTTLExpression)

	e.str("REDIS_URL", &cfg.Redis.URL)
	e.str("REDIS_ADDR", &cfg.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Redis.Password)
	e.int("REDIS_DB", &cfg.Redis.DB)

	e.int("LOGIN_MAX_ATTEMPTS", &cfg.Security.LoginMaxAttempts)
	e.str("LOGIN_LOCK_WINDOW", &cfg.Security.LoginLockWindowExpression)
	e.str("TOKEN_SWEEP_INTERVAL", &cfg.Security.SweepIntervalExpression)
	e.int("BCRYPT_COST", &cfg.Security.BcryptCost)

	e.str("ADMIN_EMAIL", &cfg.Admin.Email)
	e.str("ADMIN_PASSWORD", &cfg.Admin.Password)
	e.str("ADMIN_FIRST_NAME", &cfg.Admin.FirstName)
	e.str("ADMIN_LAST_NAME", &cfg.Admin.LastName)

	return e.err()
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) value(key string) (string, bool) {
	raw, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, errors.New(key+": must be an integer"))
		return
	}
	*dst = n
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

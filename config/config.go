// Package config resolves server configuration from flags and environment
// variables, using pflag and viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything cmd/typingserver needs to wire the server up.
type Config struct {
	Bind         string
	Port         int
	TickInterval time.Duration
	JWTSecret    string
	JWTIssuer    string
	TokenTTL     time.Duration
	PostgresDSN  string
	RedisAddr    string
	Verbose      bool
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval: %s", c.TickInterval)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must not be empty")
	}
	return nil
}

// Parse builds a Config from args (typically os.Args[1:]), falling back to
// TYPINGSERVER_-prefixed environment variables for any flag left unset.
func Parse(args []string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TYPINGSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	fs := pflag.NewFlagSet("typingserver", pflag.ContinueOnError)

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: TYPINGSERVER_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: TYPINGSERVER_PORT)")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", time.Second, "interval between session ticks (env: TYPINGSERVER_TICK_INTERVAL)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "secret used to sign and verify access tokens (env: TYPINGSERVER_JWT_SECRET)")
	fs.StringVar(&cfg.JWTIssuer, "jwt-issuer", "typingserver", "issuer claim stamped into minted access tokens (env: TYPINGSERVER_JWT_ISSUER)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", 24*time.Hour, "access token lifetime (env: TYPINGSERVER_TOKEN_TTL)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "postgres connection string (env: TYPINGSERVER_POSTGRES_DSN)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "127.0.0.1:6379", "redis address for pub/sub fan-out (env: TYPINGSERVER_REDIS_ADDR)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug-level logging (env: TYPINGSERVER_VERBOSE)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

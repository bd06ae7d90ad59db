package snowflake

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/snowflakedb/gosnowflake"
)

// ConnConfig carries the credentials and session coordinates for a warehouse
// connection. The SNOWFLAKE_* variable names match the keys the dashboard
// itself reads from its secrets store, so one set of values drives both the
// app and its deployment.
type ConnConfig struct {
	// Account is the account locator from SNOWFLAKE_ACCOUNT.
	Account string `env:"SNOWFLAKE_ACCOUNT"`
	// User is the login name from SNOWFLAKE_USER.
	User string `env:"SNOWFLAKE_USER"`
	// Password is the login password from SNOWFLAKE_PASSWORD.
	Password string `env:"SNOWFLAKE_PASSWORD"`
	// Role is the session role from SNOWFLAKE_ROLE.
	Role string `env:"SNOWFLAKE_ROLE"`
	// Warehouse is the session warehouse from SNOWFLAKE_WAREHOUSE.
	Warehouse string `env:"SNOWFLAKE_WAREHOUSE"`
	// Database is the session database from SNOWFLAKE_DATABASE.
	Database string `env:"SNOWFLAKE_DATABASE"`
	// Schema is the session schema from SNOWFLAKE_SCHEMA.
	Schema string `env:"SNOWFLAKE_SCHEMA"`
	// Authenticator selects the login method from SNOWFLAKE_AUTHENTICATOR.
	Authenticator string `env:"SNOWFLAKE_AUTHENTICATOR" envDefault:"snowflake"`
	// LoginTimeout bounds the login handshake, from SNOWFLAKE_LOGIN_TIMEOUT.
	LoginTimeout time.Duration `env:"SNOWFLAKE_LOGIN_TIMEOUT" envDefault:"60s"`
}

// ParseConnConfig fills a ConnConfig from the given environment in
// KEY=VALUE form (typically os.Environ()).
func ParseConnConfig(environ []string) (ConnConfig, error) {
	var cfg ConnConfig
	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return ConnConfig{}, fmt.Errorf("parse SNOWFLAKE_* environment: %w", err)
	}
	return cfg, nil
}

// WithTarget overlays resolved deployment coordinates onto the connection.
// Non-empty target values win over whatever the environment provided, so the
// config file stays the source of truth for object coordinates.
func (c ConnConfig) WithTarget(database, schema, warehouse, role string) ConnConfig {
	out := c
	if database != "" {
		out.Database = database
	}
	if schema != "" {
		out.Schema = schema
	}
	if warehouse != "" {
		out.Warehouse = warehouse
	}
	if role != "" {
		out.Role = role
	}
	return out
}

// Validate checks that the connection has enough information to log in.
func (c ConnConfig) Validate() error {
	if strings.TrimSpace(c.Account) == "" {
		return fmt.Errorf("SNOWFLAKE_ACCOUNT is not set")
	}
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("SNOWFLAKE_USER is not set")
	}
	auth := strings.ToLower(strings.TrimSpace(c.Authenticator))
	switch auth {
	case "", "snowflake":
		if c.Password == "" {
			return fmt.Errorf("SNOWFLAKE_PASSWORD is not set (required for password authentication)")
		}
	case "externalbrowser":
		// Browser-based SSO needs no password.
	default:
		return fmt.Errorf("unsupported authenticator %q (supported: snowflake, externalbrowser)", c.Authenticator)
	}
	return nil
}

// DSN builds the driver connection string.
func (c ConnConfig) DSN() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	cfg := &gosnowflake.Config{
		Account:      c.Account,
		User:         c.User,
		Password:     c.Password,
		Database:     c.Database,
		Schema:       c.Schema,
		Warehouse:    c.Warehouse,
		Role:         c.Role,
		Application:  "stagectl",
		LoginTimeout: c.LoginTimeout,
	}

	switch strings.ToLower(strings.TrimSpace(c.Authenticator)) {
	case "", "snowflake":
		cfg.Authenticator = gosnowflake.AuthTypeSnowflake
	case "externalbrowser":
		cfg.Authenticator = gosnowflake.AuthTypeExternalBrowser
	}

	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("build DSN for account %q: %w", c.Account, err)
	}
	return dsn, nil
}

package cli

import (
	"os"
	"strings"

	envparse "github.com/caarlos0/env/v11"
)

// baseEnv defines root CLI defaults sourced from STAGECTL_* env vars.
type baseEnv struct {
	// ConfigPath is the stagectl.yaml path from STAGECTL_CONFIG.
	ConfigPath string `env:"STAGECTL_CONFIG"`
	// Env is the environment name from STAGECTL_ENV.
	Env string `env:"STAGECTL_ENV"`
	// LogLevel is the logging level from STAGECTL_LOG_LEVEL.
	LogLevel string `env:"STAGECTL_LOG_LEVEL"`
}

// ciEnv captures STAGECTL_* inputs for CI helpers.
type ciEnv struct {
	// Retries is the deploy retry count from STAGECTL_RETRIES.
	Retries int `env:"STAGECTL_RETRIES"`
	// Backoff is the initial retry backoff from STAGECTL_BACKOFF.
	Backoff string `env:"STAGECTL_BACKOFF"`
	// Force forces a full re-deploy from STAGECTL_FORCE.
	Force bool `env:"STAGECTL_FORCE"`
	// NoHooks disables hooks from STAGECTL_NO_HOOKS.
	NoHooks bool `env:"STAGECTL_NO_HOOKS"`
	// Timeout is the deploy timeout from STAGECTL_TIMEOUT.
	Timeout string `env:"STAGECTL_TIMEOUT"`
}

// parseEnv fills target from STAGECTL_* env vars via caarlos0/env.
func parseEnv(target interface{}) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

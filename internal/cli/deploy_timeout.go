package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/snowstage/stagectl/internal/config"
)

const defaultDeployTimeout = 10 * time.Minute

// resolveDeployTimeout chooses the effective deploy timeout: an explicitly
// set flag wins, then timeouts.deploy from the config, then the default.
func resolveDeployTimeout(cfg *config.ProjectConfig, explicit string, explicitSet bool) (time.Duration, error) {
	if explicitSet {
		if v := strings.TrimSpace(explicit); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return 0, fmt.Errorf("invalid --timeout %q: %w", explicit, err)
			}
			return d, nil
		}
	}

	if cfg != nil {
		if v := strings.TrimSpace(cfg.Timeouts.Deploy); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return 0, fmt.Errorf("invalid timeouts.deploy %q in config: %w", cfg.Timeouts.Deploy, err)
			}
			return d, nil
		}
	}

	return defaultDeployTimeout, nil
}

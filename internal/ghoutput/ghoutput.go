// Package ghoutput appends workflow outputs to the file GitHub Actions
// names in GITHUB_OUTPUT. Outside of Actions it is a no-op.
package ghoutput

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Write appends key=value lines to the GITHUB_OUTPUT file when available.
// Keys must be simple identifiers; newlines in values are percent-encoded
// the way Actions expects.
func Write(values map[string]string) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if path == "" {
		return nil
	}
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		if !keyPattern.MatchString(k) {
			return fmt.Errorf("invalid output key %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, key := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, sanitize(values[key])); err != nil {
			return err
		}
	}
	return nil
}

func sanitize(value string) string {
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\r", "%0D")
	value = strings.ReplaceAll(value, "\n", "%0A")
	return value
}

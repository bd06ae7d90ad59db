// Package env contains helpers for loading and merging variables from the
// process environment, .env files, and var-files used in config templating.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Vars represents a simple string-to-string map of variables.
type Vars map[string]string

// FromOS builds a Vars map from the current process environment.
func FromOS() Vars {
	out := make(Vars)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

// Merge merges several Vars maps into one, later maps overriding earlier keys.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// LoadEnvFile loads a single .env-style file into Vars.
func LoadEnvFile(path string) (Vars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	envMap, err := godotenv.Parse(f)
	if err != nil {
		return nil, err
	}
	out := make(Vars, len(envMap))
	for k, v := range envMap {
		out[k] = v
	}
	return out, nil
}

// LoadDefaultEnvFile loads baseDir/.env when it exists. Unlike explicitly
// listed env files, a missing default .env is not an error.
func LoadDefaultEnvFile(baseDir string) (Vars, error) {
	vars, err := LoadEnvFile(filepath.Join(baseDir, ".env"))
	if err != nil {
		if os.IsNotExist(err) {
			return make(Vars), nil
		}
		return nil, fmt.Errorf("load default .env: %w", err)
	}
	return vars, nil
}

// LoadEnvFiles loads multiple .env-style files relative to baseDir and merges
// them in order, later files overriding earlier keys.
func LoadEnvFiles(baseDir string, files []string) (Vars, error) {
	var result Vars
	for _, name := range files {
		if name == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		vars, err := LoadEnvFile(path)
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		result = Merge(result, vars)
	}
	return result, nil
}

// ParseInlineVars parses a comma-separated k=v list (e.g. "A=1,B=2") into Vars.
func ParseInlineVars(s string) (Vars, error) {
	out := make(Vars)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid inline var %q, expected key=value", part)
		}
		key := strings.TrimSpace(kv[0])
		if key == "" {
			return nil, fmt.Errorf("empty key in inline var %q", part)
		}
		out[key] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

// LoadVarFile loads a var-file into Vars. Files ending in .yaml or .yml are
// decoded as a flat YAML mapping; anything else is parsed as .env-style lines.
func LoadVarFile(path string) (Vars, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var m map[string]string
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse var-file %q as YAML mapping: %w", path, err)
		}
		out := make(Vars, len(m))
		for k, v := range m {
			if strings.TrimSpace(k) == "" {
				continue
			}
			out[k] = v
		}
		return out, nil
	default:
		envMap, err := godotenv.Parse(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("parse var-file %q: %w", path, err)
		}
		out := make(Vars, len(envMap))
		for k, v := range envMap {
			out[k] = v
		}
		return out, nil
	}
}

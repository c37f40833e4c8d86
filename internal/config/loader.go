package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avaclient/internal/secret"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Load reads, parses, and validates a connection configuration from a YAML
// file. File-based credential and trust inputs (caFile, certFile, keyFile,
// tokenFile) are resolved into their inline counterparts so the returned
// Config is self-contained and the pipeline performs no file I/O.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.resolveFiles(filepath.Dir(absPath)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromReader parses and validates a configuration from a reader.
// Relative file references are resolved against the working directory.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.resolveFiles(""); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse parses YAML configuration data after environment variable
// substitution. It performs no validation and no file resolution.
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} references.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		fallback := groups[2]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return fallback
	})
}

// resolveFiles reads file-based inputs into their inline fields. Paths are
// resolved relative to baseDir when not absolute.
func (c *Config) resolveFiles(baseDir string) error {
	read := func(path, what string) (string, error) {
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
		if err != nil {
			return "", fmt.Errorf("failed to read %s file: %w", what, err)
		}
		return string(data), nil
	}

	if c.TLS.CAFile != "" && c.TLS.CAData == "" {
		data, err := read(c.TLS.CAFile, "CA bundle")
		if err != nil {
			return err
		}
		c.TLS.CAData = data
	}

	if c.TLS.CertFile != "" && c.TLS.CertData == "" {
		data, err := read(c.TLS.CertFile, "client certificate")
		if err != nil {
			return err
		}
		c.TLS.CertData = data
	}

	if c.TLS.KeyFile != "" && c.TLS.KeyData.IsZero() {
		data, err := read(c.TLS.KeyFile, "client key")
		if err != nil {
			return err
		}
		c.TLS.KeyData = secret.Secret(data)
	}

	if c.Auth.TokenFile != "" && c.Auth.Token.IsZero() {
		data, err := read(c.Auth.TokenFile, "token")
		if err != nil {
			return err
		}
		c.Auth.Token = secret.Secret(strings.TrimSpace(data))
	}

	return nil
}

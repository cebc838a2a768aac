package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Environment references of
// the form ${VAR_NAME} are expanded before parsing so secrets never need to
// live in the file itself.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// expandEnv substitutes ${VAR} references with environment values.
// Unset variables are an error rather than silently empty secrets.
func expandEnv(raw string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return val
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("unset environment variables referenced in config: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "hookgate"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Service.RequestTimeout <= 0 {
		cfg.Service.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Service.SweepInterval <= 0 {
		cfg.Service.SweepInterval = DefaultSweepInterval
	}
	if cfg.Ingress.Listen == "" {
		cfg.Ingress.Listen = "127.0.0.1:8080"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data/hookgate.db"
	}

	for id, conn := range cfg.Connectors {
		if conn.MaxPayloadBytes <= 0 {
			conn.MaxPayloadBytes = DefaultMaxPayloadBytes
		}
		if len(conn.AllowedContentTypes) == 0 {
			conn.AllowedContentTypes = []string{"application/json"}
		}
		if conn.Path == "" {
			conn.Path = "/hooks/" + id
		}
		cfg.Connectors[id] = conn
	}
}

// Validate checks the configuration for structural and per-connector errors.
func Validate(cfg *Config) error {
	if len(cfg.Connectors) == 0 {
		return fmt.Errorf("no connectors configured")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if cfg.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required when the API is enabled")
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}

	seenPaths := make(map[string]string)
	ids := make([]string, 0, len(cfg.Connectors))
	for id := range cfg.Connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		conn := cfg.Connectors[id]
		if !strings.HasPrefix(conn.Path, "/") {
			return fmt.Errorf("connector %q: path must start with '/', got %q", id, conn.Path)
		}
		if other, dup := seenPaths[conn.Path]; dup {
			return fmt.Errorf("connector %q: path %q already used by connector %q", id, conn.Path, other)
		}
		seenPaths[conn.Path] = id

		if err := validateSignature(id, conn.Signature); err != nil {
			return err
		}
	}
	return nil
}

// validateSignature rejects settings missing the fields their method needs.
// The switch is exhaustive over the supported methods.
func validateSignature(id string, sig *SignatureSettings) error {
	if sig == nil {
		return nil
	}

	if sig.ToleranceSeconds < 0 || sig.ToleranceSeconds > MaxToleranceSeconds {
		return fmt.Errorf("connector %q: tolerance_seconds must be in [0, %d], got %d",
			id, MaxToleranceSeconds, sig.ToleranceSeconds)
	}

	switch sig.Method {
	case MethodNone:
		return nil

	case MethodHMACSHA256, MethodHMACSHA512:
		if sig.Header == "" {
			return fmt.Errorf("connector %q: signature.header is required for %s", id, sig.Method)
		}
		if sig.Secret == "" {
			return fmt.Errorf("connector %q: signature.secret is required for %s", id, sig.Method)
		}
		if sig.ToleranceSeconds > 0 && sig.TimestampHeader == "" {
			return fmt.Errorf("connector %q: signature.timestamp_header is required when tolerance_seconds > 0", id)
		}
		return nil

	case MethodJWTHS256:
		if sig.Secret == "" {
			return fmt.Errorf("connector %q: signature.secret is required for %s", id, sig.Method)
		}
		return nil

	case MethodJWTRS256:
		if sig.PublicKeyPEM == "" && sig.PublicKeyURL == "" {
			return fmt.Errorf("connector %q: signature.public_key_pem or public_key_url is required for %s", id, sig.Method)
		}
		return nil

	case MethodAPIKey:
		if sig.Header == "" {
			return fmt.Errorf("connector %q: signature.header is required for %s", id, sig.Method)
		}
		if sig.Secret == "" {
			return fmt.Errorf("connector %q: signature.secret is required for %s", id, sig.Method)
		}
		return nil

	case MethodBasicAuth:
		if sig.Username == "" || sig.Password == "" {
			return fmt.Errorf("connector %q: signature.username and signature.password are required for %s", id, sig.Method)
		}
		return nil

	case "":
		return fmt.Errorf("connector %q: signature.method is empty (use %q to disable verification)", id, MethodNone)

	default:
		return fmt.Errorf("connector %q: unknown signature method %q", id, sig.Method)
	}
}

package config

import "time"

// Config represents the complete hookgate configuration.
type Config struct {
	Service    ServiceConfig              `yaml:"service"`
	Ingress    IngressConfig              `yaml:"ingress"`
	Storage    StorageConfig              `yaml:"storage"`
	API        APIConfig                  `yaml:"api,omitempty"`
	Metrics    MetricsConfig              `yaml:"metrics,omitempty"`
	Connectors map[string]ConnectorConfig `yaml:"connectors"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	LogLevel       string        `yaml:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// IngressConfig defines the webhook listener settings.
type IngressConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig defines decision log storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the read API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig defines the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ConnectorConfig defines a single inbound webhook connector.
type ConnectorConfig struct {
	// Path is the URL path for this connector (e.g., "/hooks/github").
	Path string `yaml:"path"`

	// Scope describes what the connector is allowed to represent; recorded
	// in every DecisionEvent's applied constraints.
	Scope string `yaml:"scope"`

	AllowedContentTypes []string `yaml:"allowed_content_types,omitempty"`

	// MaxPayloadBytes caps the raw body size (default: 1MB).
	MaxPayloadBytes int64 `yaml:"max_payload_bytes,omitempty"`

	// ReplayProtection enables the timestamp-keyed replay cache.
	ReplayProtection bool `yaml:"replay_protection"`

	// AllowedSourceIPs is an optional allow-list of IPs or CIDR blocks.
	// Empty means any source is accepted.
	AllowedSourceIPs []string `yaml:"allowed_source_ips,omitempty"`

	// RequiredFields lists top-level payload keys that must be present for
	// the payload to pass schema validation.
	RequiredFields []string `yaml:"required_fields,omitempty"`

	Signature *SignatureSettings `yaml:"signature,omitempty"`
}

// SignatureSettings is the raw YAML form of a connector's signature scheme.
// Only the fields relevant to Method are consulted; validation rejects
// configurations missing the fields their method needs. The verification
// layer converts this into a per-method scheme value.
type SignatureSettings struct {
	// Method is one of: none, hmac_sha256, hmac_sha512, jwt_hs256,
	// jwt_rs256, api_key, basic_auth.
	Method string `yaml:"method"`

	// Header carries the signature for HMAC methods and the key for
	// api_key. Examples: "X-Hub-Signature-256", "X-Api-Key".
	Header string `yaml:"header,omitempty"`

	// TimestampHeader carries the request timestamp for replay bounding.
	TimestampHeader string `yaml:"timestamp_header,omitempty"`

	// Secret is the shared secret (HMAC, JWT HS256, api_key).
	Secret string `yaml:"secret,omitempty"`

	// PublicKeyPEM / PublicKeyURL supply the RS256 verification key. URL
	// fetches are bounded by the per-request timeout.
	PublicKeyPEM string `yaml:"public_key_pem,omitempty"`
	PublicKeyURL string `yaml:"public_key_url,omitempty"`

	// Username/Password are the expected basic_auth credentials.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// ToleranceSeconds bounds |now - timestamp| (0 disables the check,
	// max 3600).
	ToleranceSeconds int `yaml:"tolerance_seconds,omitempty"`
}

// Signature method names accepted in SignatureSettings.Method.
const (
	MethodNone       = "none"
	MethodHMACSHA256 = "hmac_sha256"
	MethodHMACSHA512 = "hmac_sha512"
	MethodJWTHS256   = "jwt_hs256"
	MethodJWTRS256   = "jwt_rs256"
	MethodAPIKey     = "api_key"
	MethodBasicAuth  = "basic_auth"
)

// Default values
const (
	DefaultMaxPayloadBytes = 1048576 // 1 MB
	DefaultRequestTimeout  = 10 * time.Second
	DefaultSweepInterval   = time.Minute
	MaxToleranceSeconds    = 3600
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:           "hookgate",
			LogLevel:       "INFO",
			RequestTimeout: DefaultRequestTimeout,
			SweepInterval:  DefaultSweepInterval,
		},
		Ingress: IngressConfig{
			Listen: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			Path: "./data/hookgate.db",
		},
		Connectors: map[string]ConnectorConfig{},
	}
}

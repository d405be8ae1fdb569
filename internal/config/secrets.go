package config

import (
	"errors"
	"os"
	"strings"
)

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("no Anthropic API key configured")
	// ErrNoGraphToken is returned when neither a static token nor a managed identity is available.
	ErrNoGraphToken = errors.New("no Graph token or managed identity configured")
)

// SecretSource represents where a secret was loaded from.
type SecretSource string

const (
	SecretSourceEnv      SecretSource = "environment"
	SecretSourceConfig   SecretSource = "config_file"
	SecretSourceIdentity SecretSource = "managed_identity"
	SecretSourceNone     SecretSource = "none"
)

// resolveSecret checks the environment variables in order, then the
// configured value with any remaining ${VAR} references expanded.
func resolveSecret(configured string, envVars ...string) (string, SecretSource) {
	for _, name := range envVars {
		if val := os.Getenv(name); val != "" {
			return val, SecretSourceEnv
		}
	}
	if configured != "" {
		val := os.ExpandEnv(configured)
		if val != "" && !strings.HasPrefix(val, "${") {
			return val, SecretSourceConfig
		}
	}
	return "", SecretSourceNone
}

// GetAPIKey returns the Anthropic API key from the environment or configuration.
func GetAPIKey(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	key, _ := resolveSecret(configured, "ANTHROPIC_API_KEY")
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetGraphTokenSource reports where Graph credentials will come from.
// A static token wins over a managed identity.
func GetGraphTokenSource(cfg *Config) SecretSource {
	var configured string
	if cfg != nil {
		configured = cfg.Graph.Token
	}
	if _, src := resolveSecret(configured, "GRAPH_TOKEN"); src != SecretSourceNone {
		return src
	}
	if os.Getenv("IDENTITY_ENDPOINT") != "" && os.Getenv("IDENTITY_HEADER") != "" {
		return SecretSourceIdentity
	}
	return SecretSourceNone
}

// GetGraphToken returns a static Graph bearer token, if one is configured.
func GetGraphToken(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Graph.Token
	}
	token, _ := resolveSecret(configured, "GRAPH_TOKEN")
	if token == "" {
		return "", ErrNoGraphToken
	}
	return token, nil
}

// ValidateAPIKey performs basic validation on an API key.
// It checks format but does not verify the key with Anthropic's API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskSecret returns a masked version of a secret for display.
// Shows the first 7 characters and last 4 characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 15 {
		return "***"
	}
	return secret[:7] + "..." + secret[len(secret)-4:]
}

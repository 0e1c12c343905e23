// ABOUTME: Configuration loading and parsing for himari-relay
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves fields empty.
const (
	DefaultAddr          = "127.0.0.1:8085"
	DefaultModel         = "text-davinci-002-render"
	DefaultBaseURL       = "https://chat.openai.com"
	DefaultAuthBaseURL   = "https://auth0.openai.com"
	DefaultCommandPrefix = "/chat"
)

// Config represents the complete himari-relay configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the OneBot websocket listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AccessToken, when set, must be presented by connecting OneBot clients
	AccessToken string `yaml:"access_token"`
}

// OpenAIConfig holds backend credentials and endpoints.
// Either username+password (web login flow) or a direct access token
// must be provided.
type OpenAIConfig struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	AccessToken string `yaml:"access_token"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	AuthBaseURL string `yaml:"auth_base_url"`
}

// RelayConfig holds command dispatch configuration
type RelayConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultModel
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = DefaultBaseURL
	}
	if c.OpenAI.AuthBaseURL == "" {
		c.OpenAI.AuthBaseURL = DefaultAuthBaseURL
	}
	if c.Relay.CommandPrefix == "" {
		c.Relay.CommandPrefix = DefaultCommandPrefix
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.OpenAI.AccessToken == "" {
		if c.OpenAI.Username == "" || c.OpenAI.Password == "" {
			return fmt.Errorf("openai.username and openai.password are required (or set openai.access_token)")
		}
	}

	return nil
}

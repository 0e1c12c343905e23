// ABOUTME: Tests for configuration loading
// ABOUTME: Verifies YAML parsing, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:9000"
  access_token: "secret"
openai:
  username: "user@example.com"
  password: "hunter2"
  model: "text-davinci-002-render"
relay:
  command_prefix: "/gpt"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.AccessToken)
	assert.Equal(t, "user@example.com", cfg.OpenAI.Username)
	assert.Equal(t, "hunter2", cfg.OpenAI.Password)
	assert.Equal(t, "/gpt", cfg.Relay.CommandPrefix)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
openai:
  access_token: "tok"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultModel, cfg.OpenAI.Model)
	assert.Equal(t, DefaultBaseURL, cfg.OpenAI.BaseURL)
	assert.Equal(t, DefaultAuthBaseURL, cfg.OpenAI.AuthBaseURL)
	assert.Equal(t, DefaultCommandPrefix, cfg.Relay.CommandPrefix)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("HIMARI_TEST_PASSWORD", "from-env")

	path := writeConfig(t, `
openai:
  username: "user@example.com"
  password: "${HIMARI_TEST_PASSWORD}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OpenAI.Password)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
openai:
  access_token: "tok"
  model: "${HIMARI_TEST_DOES_NOT_EXIST}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	// Empty expansion falls back to the default
	assert.Equal(t, DefaultModel, cfg.OpenAI.Model)
}

func TestLoad_RequiresCredentials(t *testing.T) {
	path := writeConfig(t, `
openai:
  username: "user@example.com"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.username and openai.password")
}

func TestLoad_AccessTokenAloneIsEnough(t *testing.T) {
	path := writeConfig(t, `
openai:
  access_token: "tok"
`)

	_, err := Load(path)
	require.NoError(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

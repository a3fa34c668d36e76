package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Planner.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.Planner.StepTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "me", cfg.Gmail.Account)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9999"
planner:
  max_rounds: 5
  step_timeout: 10s
llm:
  model: gpt-4o
`))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Planner.MaxRounds)
	assert.Equal(t, 10*time.Second, cfg.Planner.StepTimeout)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestEnvAliases(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GITHUB_ACCESS_TOKEN", "ghp-test")
	t.Setenv("GMAIL_CLIENT_ID", "cid")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "ghp-test", cfg.GitHub.Token)
	assert.Equal(t, "cid", cfg.Gmail.ClientID)
}

func TestReadiness(t *testing.T) {
	cfg := &Config{}
	r := cfg.Readiness()
	assert.False(t, r.Gmail)
	assert.False(t, r.GitHub)
	assert.False(t, r.LLM)

	cfg.Gmail = GmailConfig{ClientID: "a", ClientSecret: "b", RefreshToken: "c"}
	cfg.GitHub = GitHubConfig{Token: "t"}
	cfg.LLM = LLMConfig{APIKey: "k"}
	r = cfg.Readiness()
	assert.True(t, r.Gmail)
	assert.True(t, r.GitHub)
	assert.True(t, r.LLM)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Planner: PlannerConfig{MaxRounds: 3, StepTimeout: time.Second, RoundTimeout: time.Second}}
	assert.NoError(t, cfg.Validate())

	cfg.Planner.MaxRounds = 0
	assert.Error(t, cfg.Validate())

	cfg.Planner.MaxRounds = 3
	cfg.Planner.StepTimeout = 0
	assert.Error(t, cfg.Validate())
}

// writeConfig writes a yaml config into a fresh temp dir and returns
// its absolute path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

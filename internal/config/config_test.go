// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env expansion, .env files, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validYAML = `
server:
  http_addr: "0.0.0.0:9090"
  shutdown_timeout: "5s"
  session_idle_timeout: "10m"

agent:
  account: "xy12345.us-east-1"
  model: "claude-3-5-sonnet"
  connect_timeout: "15s"
  experimental:
    EnableRelatedQueries: true

tools:
  semantic_model_file: "@db.schema.stage/model.yaml"
  search_service: "db.schema.search"
  max_results: 5

auth:
  method: pat
  token: "${TEST_CORTEX_PAT}"
  token_type: "PROGRAMMATIC_ACCESS_TOKEN"

warehouse:
  enabled: false

database:
  path: "/tmp/cortex-chat-test.db"

logging:
  level: debug
  format: json

metrics:
  enabled: true
`

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_CORTEX_PAT", "secret-pat")
	path := writeConfig(t, "config.yaml", validYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Server.SessionIdle)
	assert.Equal(t, DefaultSubmissionTTL, cfg.Server.SubmissionTTL)

	assert.Equal(t, "xy12345.us-east-1.snowflakecomputing.com", cfg.Agent.AccountURL)
	assert.Equal(t, "claude-3-5-sonnet", cfg.Agent.Model)
	assert.Equal(t, 15*time.Second, cfg.Agent.ConnectTimeout)
	assert.Equal(t, map[string]any{"EnableRelatedQueries": true}, cfg.Agent.Experimental)

	assert.Equal(t, "@db.schema.stage/model.yaml", cfg.Tools.SemanticModelFile)
	assert.Equal(t, 5, cfg.Tools.MaxResults)

	assert.Equal(t, AuthMethodPAT, cfg.Auth.Method)
	assert.Equal(t, "secret-pat", cfg.Auth.Token)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
	assert.Equal(t, DefaultMaxRows, cfg.Warehouse.MaxRows)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[agent]
account_url = "https://myorg-acct.snowflakecomputing.com"
name = "SALES_AGENT"
database = "SALES"
schema = "AGENTS"

[auth]
method = "keypair"
user = "analyst"
private_key_path = "/keys/rsa_key.p8"
jwt_lifetime = "30m"
jwt_renewal = "25m"

[database]
path = "/tmp/chat.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "myorg-acct", cfg.Agent.Account)
	assert.Equal(t, "SALES_AGENT", cfg.Agent.Name)
	assert.Equal(t, AuthMethodKeyPair, cfg.Auth.Method)
	assert.Equal(t, 30*time.Minute, cfg.Auth.JWTLifetime)
	assert.Equal(t, 25*time.Minute, cfg.Auth.JWTRenewal)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultModel, cfg.Agent.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "bad.yaml", "server: [unclosed"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing config file")
	})

	t.Run("invalid duration", func(t *testing.T) {
		content := strings.Replace(validYAML, `"15s"`, `"fifteen"`, 1)
		t.Setenv("TEST_CORTEX_PAT", "x")
		_, err := Load(writeConfig(t, "config.yaml", content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.connect_timeout")
	})

	t.Run("unset token", func(t *testing.T) {
		t.Setenv("TEST_CORTEX_PAT", "")
		_, err := Load(writeConfig(t, "config.yaml", validYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.token is required")
	})
}

func validConfig() *Config {
	cfg := &Config{
		Agent: AgentConfig{Account: "acct"},
		Tools: ToolsConfig{SemanticModelFile: "@stage/model.yaml"},
		Auth:  AuthConfig{Token: "pat"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no account", func(c *Config) { c.Agent.AccountURL = "" }, "agent.account_url"},
		{"no tools", func(c *Config) { c.Tools = ToolsConfig{} }, "tools.semantic_model_file"},
		{"agent object without tools", func(c *Config) {
			c.Tools = ToolsConfig{}
			c.Agent.Name, c.Agent.Database, c.Agent.Schema = "A", "D", "S"
		}, ""},
		{"agent object missing schema", func(c *Config) { c.Agent.Name, c.Agent.Database = "A", "D" }, "agent.database and agent.schema"},
		{"negative max results", func(c *Config) { c.Tools.MaxResults = -1 }, "tools.max_results"},
		{"unknown auth method", func(c *Config) { c.Auth.Method = "oauth" }, "auth.method"},
		{"keypair without user", func(c *Config) {
			c.Auth.Method = AuthMethodKeyPair
			c.Auth.PrivateKeyPath = "/k.p8"
		}, "auth.user"},
		{"keypair renewal too long", func(c *Config) {
			c.Auth = AuthConfig{Method: AuthMethodKeyPair, User: "u", PrivateKeyPath: "/k.p8",
				JWTLifetime: time.Minute, JWTRenewal: time.Hour}
		}, "auth.jwt_renewal"},
		{"warehouse without name", func(c *Config) { c.Warehouse.Enabled = true }, "warehouse.name"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")
	t.Setenv("SNOWFLAKE_ACCOUNT_URL", "")
	t.Setenv("CORTEX_AGENT_DEMO_HOST", "")
	t.Setenv("CORTEX_AGENT_DEMO_AGENT", "SALES_INTELLIGENCE_AGENT")
	t.Setenv("CORTEX_AGENT_DEMO_DATABASE", "")
	t.Setenv("CORTEX_AGENT_DEMO_SCHEMA", "")
	t.Setenv("CORTEX_AGENT_DEMO_PAT", "pat-value")
	t.Setenv("RSA_PRIVATE_KEY_PATH", "")
	t.Setenv("SNOWFLAKE_USER", "analyst")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "COMPUTE_WH")
	t.Setenv("SNOWFLAKE_ROLE", "ANALYST")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "xy12345.snowflakecomputing.com", cfg.Agent.AccountURL)
	assert.Equal(t, "SALES_INTELLIGENCE_AGENT", cfg.Agent.Name)
	assert.Equal(t, "SALES_INTELLIGENCE", cfg.Agent.Database)
	assert.Equal(t, "AGENTS", cfg.Agent.Schema)
	assert.Equal(t, AuthMethodPAT, cfg.Auth.Method)
	assert.Equal(t, "pat-value", cfg.Auth.Token)
	assert.True(t, cfg.Warehouse.Enabled)
	assert.Equal(t, "COMPUTE_WH", cfg.Warehouse.Name)
	assert.Equal(t, "ANALYST", cfg.Warehouse.Role)
	assert.True(t, strings.HasSuffix(cfg.Database.Path, filepath.Join("cortex-chat", "chat.db")))
}

func TestPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/etc/cortex-chat.yaml")
		assert.Equal(t, "/etc/cortex-chat.yaml", Path())
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "cortex-chat", "config.yaml"), Path())
	})
}

func TestLoadEnvFiles_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "extra.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CC_TEST_NEW=from-file\nCC_TEST_SET=from-file\n"), 0644))

	t.Chdir(dir)
	t.Setenv(EnvEnvFile, envFile)
	t.Setenv("CC_TEST_SET", "from-env")
	t.Setenv("CC_TEST_NEW", "")
	os.Unsetenv("CC_TEST_NEW")

	require.NoError(t, LoadEnvFiles())
	t.Cleanup(func() { os.Unsetenv("CC_TEST_NEW") })

	assert.Equal(t, "from-file", os.Getenv("CC_TEST_NEW"))
	assert.Equal(t, "from-env", os.Getenv("CC_TEST_SET"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "keys", "k.p8"), expandHome("~/keys/k.p8"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "", expandHome(""))
}

// ABOUTME: Configuration loading and parsing for cortex-chat
// ABOUTME: Supports YAML or TOML files, .env files, environment expansion, and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that select config and .env files.
const (
	EnvConfigPath = "CORTEX_CHAT_CONFIG"
	EnvEnvFile    = "CORTEX_CHAT_ENV_FILE"
)

// Auth methods.
const (
	AuthMethodPAT     = "pat"
	AuthMethodKeyPair = "keypair"
)

// Defaults applied to unset fields.
const (
	DefaultHTTPAddr          = "127.0.0.1:8080"
	DefaultModel             = "claude-4-sonnet"
	DefaultConnectTimeout    = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultSessionIdleTime   = 30 * time.Minute
	DefaultSubmissionTTL     = 5 * time.Minute
	DefaultMaxRows           = 1000
	DefaultQueryTimeout      = 2 * time.Minute
	DefaultMetricsPath       = "/metrics"
	defaultSnowflakeDomain   = ".snowflakecomputing.com"
	defaultDatabaseDirectory = "cortex-chat"
)

// Config represents the complete cortex-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Warehouse WarehouseConfig `yaml:"warehouse" toml:"warehouse"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the web server settings
type ServerConfig struct {
	HTTPAddr     string `yaml:"http_addr" toml:"http_addr"`
	CookieSecure bool   `yaml:"cookie_secure" toml:"cookie_secure"`

	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`
	SessionIdle     time.Duration `yaml:"-" toml:"-"`
	SubmissionTTL   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	SessionIdleRaw     string `yaml:"session_idle_timeout" toml:"session_idle_timeout"`
	SubmissionTTLRaw   string `yaml:"submission_ttl" toml:"submission_ttl"`
}

// AgentConfig locates the agent service. When Name is set the named agent
// object is called; otherwise the inline run endpoint with Tools is used.
type AgentConfig struct {
	// AccountURL is the account host, e.g. myorg-acct.snowflakecomputing.com
	AccountURL string `yaml:"account_url" toml:"account_url"`
	Account    string `yaml:"account" toml:"account"`
	Model      string `yaml:"model" toml:"model"`
	Database   string `yaml:"database" toml:"database"`
	Schema     string `yaml:"schema" toml:"schema"`
	Name       string `yaml:"name" toml:"name"`

	ConnectTimeout    time.Duration `yaml:"-" toml:"-"`
	ConnectTimeoutRaw string        `yaml:"connect_timeout" toml:"connect_timeout"`

	// Experimental is sent verbatim as the request's experimental object
	Experimental map[string]any `yaml:"experimental" toml:"experimental"`
}

// ToolsConfig binds the text-to-SQL and search tools
type ToolsConfig struct {
	SemanticModelFile string `yaml:"semantic_model_file" toml:"semantic_model_file"`
	SearchService     string `yaml:"search_service" toml:"search_service"`
	MaxResults        int    `yaml:"max_results" toml:"max_results"`
}

// AuthConfig holds agent credentials
type AuthConfig struct {
	Method string `yaml:"method" toml:"method"`

	// Programmatic access token (method: pat)
	Token     string `yaml:"token" toml:"token"`
	TokenType string `yaml:"token_type" toml:"token_type"`

	// Key-pair settings (method: keypair)
	User           string `yaml:"user" toml:"user"`
	PrivateKeyPath string `yaml:"private_key_path" toml:"private_key_path"`
	Passphrase     string `yaml:"private_key_passphrase" toml:"private_key_passphrase"`

	JWTLifetime    time.Duration `yaml:"-" toml:"-"`
	JWTRenewal     time.Duration `yaml:"-" toml:"-"`
	JWTLifetimeRaw string        `yaml:"jwt_lifetime" toml:"jwt_lifetime"`
	JWTRenewalRaw  string        `yaml:"jwt_renewal" toml:"jwt_renewal"`
}

// WarehouseConfig enables direct execution of generated SQL
type WarehouseConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Name     string `yaml:"name" toml:"name"`
	Role     string `yaml:"role" toml:"role"`
	Database string `yaml:"database" toml:"database"`
	Schema   string `yaml:"schema" toml:"schema"`
	Password string `yaml:"password" toml:"password"`
	MaxRows  int    `yaml:"max_rows" toml:"max_rows"`

	QueryTimeout    time.Duration `yaml:"-" toml:"-"`
	QueryTimeoutRaw string        `yaml:"query_timeout" toml:"query_timeout"`
}

// DatabaseConfig holds transcript database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Path returns the config file location.
// Priority: CORTEX_CHAT_CONFIG > XDG_CONFIG_HOME/cortex-chat/config.yaml > ~/.config/cortex-chat/config.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "cortex-chat", "config.yaml")
}

// LoadEnvFiles loads .env from the working directory and the file named by
// CORTEX_CHAT_ENV_FILE. Variables already set are not overridden; missing
// files are skipped.
func LoadEnvFiles() error {
	files := []string{".env"}
	if extra := os.Getenv(EnvEnvFile); extra != "" {
		files = append(files, extra)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Resolve loads the config file at Path, or builds the config from the
// environment when no file exists.
func Resolve() (*Config, string, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, "", err
	}
	path := Path()
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("checking config file: %w", err)
		}
		cfg, err := LoadFromEnv()
		return cfg, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Load reads a configuration file and returns a parsed Config. Files ending
// in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(&cfg)
}

// LoadFromEnv builds a Config from the SNOWFLAKE_* and CORTEX_AGENT_DEMO_*
// environment variables.
func LoadFromEnv() (*Config, error) {
	var cfg Config

	cfg.Agent.Account = os.Getenv("SNOWFLAKE_ACCOUNT")
	cfg.Agent.AccountURL = firstEnv("SNOWFLAKE_ACCOUNT_URL", "CORTEX_AGENT_DEMO_HOST")
	cfg.Agent.Name = os.Getenv("CORTEX_AGENT_DEMO_AGENT")
	if cfg.Agent.Name != "" {
		cfg.Agent.Database = envOr("CORTEX_AGENT_DEMO_DATABASE", "SALES_INTELLIGENCE")
		cfg.Agent.Schema = envOr("CORTEX_AGENT_DEMO_SCHEMA", "AGENTS")
	}

	cfg.Tools.SemanticModelFile = os.Getenv("CORTEX_SEMANTIC_MODEL_FILE")
	cfg.Tools.SearchService = os.Getenv("CORTEX_SEARCH_SERVICE")

	cfg.Auth.User = os.Getenv("SNOWFLAKE_USER")
	cfg.Auth.PrivateKeyPath = os.Getenv("RSA_PRIVATE_KEY_PATH")
	cfg.Auth.Passphrase = os.Getenv("PRIVATE_KEY_PASSPHRASE")
	cfg.Auth.Token = os.Getenv("CORTEX_AGENT_DEMO_PAT")
	switch {
	case cfg.Auth.Token != "":
		cfg.Auth.Method = AuthMethodPAT
	case cfg.Auth.PrivateKeyPath != "":
		cfg.Auth.Method = AuthMethodKeyPair
	}

	cfg.Warehouse.Name = os.Getenv("SNOWFLAKE_WAREHOUSE")
	cfg.Warehouse.Role = os.Getenv("SNOWFLAKE_ROLE")
	cfg.Warehouse.Database = os.Getenv("SNOWFLAKE_DATABASE")
	cfg.Warehouse.Schema = os.Getenv("SNOWFLAKE_SCHEMA")
	cfg.Warehouse.Password = os.Getenv("SNOWFLAKE_PASSWORD")
	cfg.Warehouse.Enabled = cfg.Warehouse.Name != ""

	cfg.Logging.Level = os.Getenv("LOG_LEVEL")
	cfg.Logging.File = os.Getenv("LOG_FILE")

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.SessionIdle == 0 {
		c.Server.SessionIdle = DefaultSessionIdleTime
	}
	if c.Server.SubmissionTTL == 0 {
		c.Server.SubmissionTTL = DefaultSubmissionTTL
	}

	if c.Agent.AccountURL == "" && c.Agent.Account != "" {
		c.Agent.AccountURL = strings.ToLower(c.Agent.Account) + defaultSnowflakeDomain
	}
	if c.Agent.Account == "" && c.Agent.AccountURL != "" {
		c.Agent.Account = accountFromURL(c.Agent.AccountURL)
	}
	if c.Agent.Model == "" {
		c.Agent.Model = DefaultModel
	}
	if c.Agent.ConnectTimeout == 0 {
		c.Agent.ConnectTimeout = DefaultConnectTimeout
	}

	if c.Auth.Method == "" {
		if c.Auth.PrivateKeyPath != "" {
			c.Auth.Method = AuthMethodKeyPair
		} else {
			c.Auth.Method = AuthMethodPAT
		}
	}

	if c.Warehouse.MaxRows <= 0 {
		c.Warehouse.MaxRows = DefaultMaxRows
	}
	if c.Warehouse.QueryTimeout == 0 {
		c.Warehouse.QueryTimeout = DefaultQueryTimeout
	}

	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath()
	}
	c.Database.Path = expandHome(c.Database.Path)
	c.Auth.PrivateKeyPath = expandHome(c.Auth.PrivateKeyPath)
	c.Logging.File = expandHome(c.Logging.File)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Agent.AccountURL == "" {
		return fmt.Errorf("agent.account_url or agent.account is required")
	}
	if c.Agent.Name != "" {
		if c.Agent.Database == "" || c.Agent.Schema == "" {
			return fmt.Errorf("agent.database and agent.schema are required when agent.name is set")
		}
	} else if c.Tools.SemanticModelFile == "" && c.Tools.SearchService == "" {
		return fmt.Errorf("tools.semantic_model_file or tools.search_service is required without agent.name")
	}
	if c.Tools.MaxResults < 0 {
		return fmt.Errorf("tools.max_results must not be negative")
	}

	switch c.Auth.Method {
	case AuthMethodPAT:
		if c.Auth.Token == "" {
			return fmt.Errorf("auth.token is required for auth method %q", AuthMethodPAT)
		}
	case AuthMethodKeyPair:
		if c.Auth.User == "" {
			return fmt.Errorf("auth.user is required for auth method %q", AuthMethodKeyPair)
		}
		if c.Auth.PrivateKeyPath == "" {
			return fmt.Errorf("auth.private_key_path is required for auth method %q", AuthMethodKeyPair)
		}
		if c.Agent.Account == "" {
			return fmt.Errorf("agent.account is required for auth method %q", AuthMethodKeyPair)
		}
		if c.Auth.JWTRenewal > 0 && c.Auth.JWTLifetime > 0 && c.Auth.JWTRenewal >= c.Auth.JWTLifetime {
			return fmt.Errorf("auth.jwt_renewal must be shorter than auth.jwt_lifetime")
		}
	default:
		return fmt.Errorf("auth.method must be %q or %q, got %q", AuthMethodPAT, AuthMethodKeyPair, c.Auth.Method)
	}

	if c.Warehouse.Enabled {
		if c.Warehouse.Name == "" {
			return fmt.Errorf("warehouse.name is required when the warehouse is enabled")
		}
		if c.Auth.User == "" {
			return fmt.Errorf("auth.user is required when the warehouse is enabled")
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"server.session_idle_timeout", cfg.Server.SessionIdleRaw, &cfg.Server.SessionIdle},
		{"server.submission_ttl", cfg.Server.SubmissionTTLRaw, &cfg.Server.SubmissionTTL},
		{"agent.connect_timeout", cfg.Agent.ConnectTimeoutRaw, &cfg.Agent.ConnectTimeout},
		{"auth.jwt_lifetime", cfg.Auth.JWTLifetimeRaw, &cfg.Auth.JWTLifetime},
		{"auth.jwt_renewal", cfg.Auth.JWTRenewalRaw, &cfg.Auth.JWTRenewal},
		{"warehouse.query_timeout", cfg.Warehouse.QueryTimeoutRaw, &cfg.Warehouse.QueryTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}

// accountFromURL takes the first label of the host as the account identifier.
func accountFromURL(raw string) string {
	host := raw
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.SplitN(host, "/", 2)[0]
	return strings.SplitN(host, ".", 2)[0]
}

func defaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "cortex-chat.db"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, defaultDatabaseDirectory, "chat.db")
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

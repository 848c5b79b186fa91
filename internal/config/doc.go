// Package config handles configuration loading for cortex-chat.
//
// # Configuration File
//
// Location, in order:
//
//  1. Path from the CORTEX_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/cortex-chat/config.yaml
//  3. ~/.config/cortex-chat/config.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML. When no
// file exists, LoadFromEnv builds the configuration from SNOWFLAKE_* and
// CORTEX_AGENT_DEMO_* variables. A .env file in the working directory (and
// the file named by CORTEX_CHAT_ENV_FILE) is loaded first and never
// overrides variables that are already set.
//
// # Environment Variable Expansion
//
//	auth:
//	  token: "${CORTEX_AGENT_DEMO_PAT}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use time.ParseDuration syntax ("30s", "5m", "1h").
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  session_idle_timeout: "30m"
//
//	agent:
//	  account: "xy12345.us-east-1"
//	  model: "claude-4-sonnet"
//	  connect_timeout: "30s"
//
//	tools:
//	  semantic_model_file: "@sales_intelligence.data.models/sales_metrics_model.yaml"
//	  search_service: "sales_intelligence.data.sales_conversation_search"
//	  max_results: 10
//
//	auth:
//	  method: keypair
//	  user: "ANALYST"
//	  private_key_path: "~/.snowflake/rsa_key.p8"
//	  private_key_passphrase: "${PRIVATE_KEY_PASSPHRASE}"
//
//	warehouse:
//	  enabled: true
//	  name: "COMPUTE_WH"
//	  role: "ANALYST"
//	  max_rows: 1000
//
//	database:
//	  path: "~/.local/share/cortex-chat/chat.db"
//
//	logging:
//	  level: info
//	  format: text
//
//	metrics:
//	  enabled: true
//	  path: /metrics
//
// Setting agent.name (with agent.database and agent.schema) calls a named
// agent object instead of the inline endpoint; the tools section is then
// optional.
package config

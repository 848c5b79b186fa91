// ABOUTME: Interactive config file creation for cortex-chat init
// ABOUTME: Prompts for account, auth, tools, and storage settings and writes YAML

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/cortex-chat/internal/config"
)

// initAnswers holds what runInit collected.
type initAnswers struct {
	httpAddr       string
	account        string
	authMethod     string
	token          string
	user           string
	privateKeyPath string
	agentDatabase  string
	agentSchema    string
	agentName      string
	semanticModel  string
	searchService  string
	dbPath         string
	warehouse      string
	warehouseRole  string
	logLevel       string
	logFormat      string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("cortex-chat configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.Path())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.httpAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Account ---")
	a.account = prompt(reader, "Account identifier (ORG-ACCOUNT)", os.Getenv("SNOWFLAKE_ACCOUNT"))

	fmt.Println("\n--- Authentication ---")
	a.authMethod = prompt(reader, "Auth method (pat/keypair)", config.AuthMethodPAT)
	switch a.authMethod {
	case config.AuthMethodKeyPair:
		a.user = prompt(reader, "User", os.Getenv("SNOWFLAKE_USER"))
		a.privateKeyPath = prompt(reader, "Private key path", "~/.ssh/snowflake_rsa_key.p8")
	default:
		a.authMethod = config.AuthMethodPAT
		a.token = prompt(reader, "Token (or ${ENV_VAR} reference)", "${SNOWFLAKE_PAT}")
		a.user = prompt(reader, "User (needed to run SQL, optional)", os.Getenv("SNOWFLAKE_USER"))
	}

	fmt.Println("\n--- Agent ---")
	a.agentName = prompt(reader, "Agent object name (leave empty for inline tools)", "")
	if a.agentName != "" {
		a.agentDatabase = prompt(reader, "Agent database", "SALES_INTELLIGENCE")
		a.agentSchema = prompt(reader, "Agent schema", "AGENTS")
	} else {
		a.semanticModel = prompt(reader, "Semantic model file (stage path)", "")
		a.searchService = prompt(reader, "Search service (DB.SCHEMA.SERVICE, optional)", "")
	}

	fmt.Println("\n--- Warehouse ---")
	if yes(prompt(reader, "Enable running generated SQL?", "no")) {
		a.warehouse = prompt(reader, "Warehouse name", "COMPUTE_WH")
		a.warehouseRole = prompt(reader, "Role (optional)", "")
	}

	fmt.Println("\n--- Database Configuration ---")
	a.dbPath = prompt(reader, "SQLite database path", "~/.local/share/cortex-chat/chat.db")

	fmt.Println("\n--- Logging Configuration ---")
	a.logLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.logFormat = prompt(reader, "Log format (text/json)", "text")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Tokens may be written inline, so keep the file private.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  cortex-chat serve\n")
	fmt.Println("\nOr ask from the terminal:")
	fmt.Printf("  cortex-chat ask \"What were sales by region last quarter?\"\n")

	return nil
}

// renderConfig formats the answers as a YAML config file.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# cortex-chat configuration\n")
	cfg.WriteString("# Generated by cortex-chat init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.httpAddr))
	cfg.WriteString("  shutdown_timeout: \"10s\"\n")
	cfg.WriteString("  session_idle_timeout: \"30m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  account: %q\n", a.account))
	cfg.WriteString(fmt.Sprintf("  model: %q\n", config.DefaultModel))
	if a.agentName != "" {
		cfg.WriteString(fmt.Sprintf("  database: %q\n", a.agentDatabase))
		cfg.WriteString(fmt.Sprintf("  schema: %q\n", a.agentSchema))
		cfg.WriteString(fmt.Sprintf("  name: %q\n", a.agentName))
	}
	cfg.WriteString("  connect_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	if a.semanticModel != "" || a.searchService != "" {
		cfg.WriteString("tools:\n")
		if a.semanticModel != "" {
			cfg.WriteString(fmt.Sprintf("  semantic_model_file: %q\n", a.semanticModel))
		}
		if a.searchService != "" {
			cfg.WriteString(fmt.Sprintf("  search_service: %q\n", a.searchService))
		}
		cfg.WriteString("\n")
	}

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  method: %q\n", a.authMethod))
	if a.token != "" {
		cfg.WriteString(fmt.Sprintf("  token: %q\n", a.token))
	}
	if a.user != "" {
		cfg.WriteString(fmt.Sprintf("  user: %q\n", a.user))
	}
	if a.privateKeyPath != "" {
		cfg.WriteString(fmt.Sprintf("  private_key_path: %q\n", a.privateKeyPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("warehouse:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.warehouse != ""))
	if a.warehouse != "" {
		cfg.WriteString(fmt.Sprintf("  name: %q\n", a.warehouse))
		if a.warehouseRole != "" {
			cfg.WriteString(fmt.Sprintf("  role: %q\n", a.warehouseRole))
		}
		cfg.WriteString(fmt.Sprintf("  max_rows: %d\n", config.DefaultMaxRows))
		cfg.WriteString("  query_timeout: \"2m\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", config.DefaultMetricsPath))

	return cfg.String()
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

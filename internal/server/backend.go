// ABOUTME: Builds agent credentials, the agent client, and the optional warehouse from config
// ABOUTME: Shared by the web server and the command-line chat

package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/auth"
	"github.com/2389/cortex-chat/internal/chat"
	"github.com/2389/cortex-chat/internal/config"
	"github.com/2389/cortex-chat/internal/metrics"
	"github.com/2389/cortex-chat/internal/warehouse"
)

// NewCredentials returns the agent credentials selected by auth.method.
func NewCredentials(cfg *config.Config, logger *slog.Logger) (agent.Credentials, error) {
	if cfg.Auth.Method == config.AuthMethodKeyPair {
		kp, err := auth.NewKeyPair(auth.KeyPairOptions{
			Account:        cfg.Agent.Account,
			User:           cfg.Auth.User,
			PrivateKeyPath: cfg.Auth.PrivateKeyPath,
			Passphrase:     cfg.Auth.Passphrase,
			Lifetime:       cfg.Auth.JWTLifetime,
			Renewal:        cfg.Auth.JWTRenewal,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating key-pair credentials: %w", err)
		}
		return kp, nil
	}

	tokenType := cfg.Auth.TokenType
	if tokenType == "" {
		tokenType = auth.TokenTypePAT
	}
	tok, err := auth.NewStaticToken(cfg.Auth.Token, tokenType)
	if err != nil {
		return nil, fmt.Errorf("creating token credentials: %w", err)
	}
	return tok, nil
}

// NewAgentClient creates the client for the configured agent endpoint.
func NewAgentClient(cfg *config.Config, creds agent.Credentials) (*agent.Client, error) {
	return agent.NewClient(agent.ClientOptions{
		BaseURL: cfg.Agent.AccountURL,
		Endpoint: agent.Endpoint{
			Database: cfg.Agent.Database,
			Schema:   cfg.Agent.Schema,
			Agent:    cfg.Agent.Name,
		},
		Credentials:    creds,
		ConnectTimeout: cfg.Agent.ConnectTimeout,
	})
}

// RequestConfig returns the static part of every run request.
func RequestConfig(cfg *config.Config) agent.RequestConfig {
	rc := agent.RequestConfig{
		Model:        cfg.Agent.Model,
		Experimental: cfg.Agent.Experimental,
	}
	// A named agent object owns its tools; only the inline endpoint takes them.
	if cfg.Agent.Name == "" {
		rc.Tools = agent.ToolConfig{
			SemanticModelFile: cfg.Tools.SemanticModelFile,
			SearchService:     cfg.Tools.SearchService,
			MaxResults:        cfg.Tools.MaxResults,
		}
	}
	return rc
}

// WarehouseOptions maps config onto the warehouse connection options.
// Key-pair auth reuses the agent's private key.
func WarehouseOptions(cfg *config.Config) (warehouse.Options, error) {
	opts := warehouse.Options{
		Account:      cfg.Agent.Account,
		AccountURL:   cfg.Agent.AccountURL,
		User:         cfg.Auth.User,
		Password:     cfg.Warehouse.Password,
		Role:         cfg.Warehouse.Role,
		Warehouse:    cfg.Warehouse.Name,
		Database:     cfg.Warehouse.Database,
		Schema:       cfg.Warehouse.Schema,
		LoginTimeout: cfg.Agent.ConnectTimeout,
	}

	switch cfg.Auth.Method {
	case config.AuthMethodKeyPair:
		pemBytes, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
		if err != nil {
			return warehouse.Options{}, fmt.Errorf("reading private key: %w", err)
		}
		key, err := auth.ParsePrivateKey(pemBytes, cfg.Auth.Passphrase)
		if err != nil {
			return warehouse.Options{}, err
		}
		opts.PrivateKey = key
	case config.AuthMethodPAT:
		opts.Token = cfg.Auth.Token
	}
	return opts, nil
}

// Backend is the chat service and the resources behind it.
type Backend struct {
	Chat *chat.Service
	db   *sql.DB
}

// NewBackend wires credentials, the agent client, and the warehouse (when
// enabled) into a chat service.
func NewBackend(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Backend, error) {
	creds, err := NewCredentials(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := NewAgentClient(cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("creating agent client: %w", err)
	}

	b := &Backend{}
	opts := chat.ServiceOptions{
		Agent:   client,
		Request: RequestConfig(cfg),
		Metrics: m,
		Logger:  logger,
	}

	if cfg.Warehouse.Enabled {
		whOpts, err := WarehouseOptions(cfg)
		if err != nil {
			return nil, fmt.Errorf("configuring warehouse: %w", err)
		}
		db, err := warehouse.Open(whOpts)
		if err != nil {
			return nil, fmt.Errorf("opening warehouse: %w", err)
		}
		b.db = db
		opts.Warehouse = warehouse.NewSQLExecutor(db, warehouse.SQLExecutorOptions{
			MaxRows: cfg.Warehouse.MaxRows,
			Timeout: cfg.Warehouse.QueryTimeout,
			Metrics: m,
			Logger:  logger,
		})
		logger.Info("warehouse enabled", "warehouse", cfg.Warehouse.Name, "max_rows", cfg.Warehouse.MaxRows)
	}

	svc, err := chat.NewService(opts)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Chat = svc

	logger.Info("agent client ready", "url", client.URL(), "auth", cfg.Auth.Method, "model", cfg.Agent.Model)
	return b, nil
}

// Close releases the warehouse connection pool.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

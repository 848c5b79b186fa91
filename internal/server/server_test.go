// ABOUTME: Tests for server wiring, health endpoints, metrics exposure, and shutdown
// ABOUTME: Uses a prebuilt backend over a canned agent stream so no network is needed

package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/auth"
	"github.com/2389/cortex-chat/internal/chat"
	"github.com/2389/cortex-chat/internal/config"
)

type emptyRunner struct{}

func (emptyRunner) Run(context.Context, agent.RunRequest) (*agent.Stream, error) {
	return agent.NewStream(io.NopCloser(strings.NewReader("")), ""), nil
}

// testConfig creates a minimal valid config backed by a temp database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr:        "127.0.0.1:0",
			ShutdownTimeout: 5 * time.Second,
		},
		Agent: config.AgentConfig{
			Account:        "MYORG-ACCT",
			AccountURL:     "myorg-acct.snowflakecomputing.com",
			Model:          config.DefaultModel,
			ConnectTimeout: time.Second,
		},
		Tools: config.ToolsConfig{SemanticModelFile: "@DB.SCHEMA.STAGE/model.yaml"},
		Auth: config.AuthConfig{
			Method: config.AuthMethodPAT,
			Token:  "pat-secret",
		},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "chat.db")},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc, err := chat.NewService(chat.ServiceOptions{Agent: emptyRunner{}})
	require.NoError(t, err)

	s, err := NewWithBackend(cfg, &Backend{Chat: svc}, testLogger())
	require.NoError(t, err)
	return s
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rsa_key.p8")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))
	return path
}

func TestNewCredentials_PAT(t *testing.T) {
	cfg := testConfig(t)

	creds, err := NewCredentials(cfg, testLogger())
	require.NoError(t, err)

	tok, err := creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pat-secret", tok)
	assert.Equal(t, auth.TokenTypePAT, creds.TokenType())
}

func TestNewCredentials_PATMissingToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Token = ""

	_, err := NewCredentials(cfg, testLogger())
	assert.ErrorIs(t, err, auth.ErrNoCredentials)
}

func TestNewCredentials_KeyPair(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{
		Method:         config.AuthMethodKeyPair,
		User:           "analyst",
		PrivateKeyPath: writeTestKey(t),
	}

	creds, err := NewCredentials(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeKeyPairJWT, creds.TokenType())

	tok, err := creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(tok, ".")), "expected a JWT")
}

func TestNewAgentClient_Endpoints(t *testing.T) {
	cfg := testConfig(t)
	creds, err := NewCredentials(cfg, testLogger())
	require.NoError(t, err)

	client, err := NewAgentClient(cfg, creds)
	require.NoError(t, err)
	assert.Equal(t, "https://myorg-acct.snowflakecomputing.com"+agent.InlinePath, client.URL())

	cfg.Agent.Database = "SALES"
	cfg.Agent.Schema = "AGENTS"
	cfg.Agent.Name = "analyst"
	client, err = NewAgentClient(cfg, creds)
	require.NoError(t, err)
	assert.Equal(t, "https://myorg-acct.snowflakecomputing.com/api/v2/databases/SALES/schemas/AGENTS/agents/analyst:run", client.URL())
}

func TestRequestConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.SearchService = "DB.SCHEMA.DOCS"
	cfg.Tools.MaxResults = 5

	rc := RequestConfig(cfg)
	assert.Equal(t, config.DefaultModel, rc.Model)
	assert.Equal(t, "@DB.SCHEMA.STAGE/model.yaml", rc.Tools.SemanticModelFile)
	assert.Equal(t, "DB.SCHEMA.DOCS", rc.Tools.SearchService)
	assert.Equal(t, 5, rc.Tools.MaxResults)
	assert.Nil(t, rc.Experimental)
}

func TestRequestConfig_NamedAgentOwnsTools(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.Database = "SALES"
	cfg.Agent.Schema = "AGENTS"
	cfg.Agent.Name = "ANALYST"
	cfg.Agent.Experimental = map[string]any{"EnableRelatedQueries": true}

	req := agent.BuildRunRequest([]agent.Message{agent.NewUserMessage("hi")}, RequestConfig(cfg))
	assert.Empty(t, req.Tools)
	assert.Nil(t, req.ToolResources)
	assert.Equal(t, config.DefaultModel, req.Model)
	assert.Equal(t, map[string]any{"EnableRelatedQueries": true}, req.Experimental)
}

func TestWarehouseOptions(t *testing.T) {
	t.Run("pat", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.User = "analyst"
		cfg.Warehouse = config.WarehouseConfig{Enabled: true, Name: "COMPUTE_WH", Role: "ANALYST"}

		opts, err := WarehouseOptions(cfg)
		require.NoError(t, err)
		assert.Equal(t, "pat-secret", opts.Token)
		assert.Nil(t, opts.PrivateKey)
		assert.Equal(t, "COMPUTE_WH", opts.Warehouse)
		assert.Equal(t, "ANALYST", opts.Role)
		assert.Equal(t, "MYORG-ACCT", opts.Account)
	})

	t.Run("keypair", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth = config.AuthConfig{
			Method:         config.AuthMethodKeyPair,
			User:           "analyst",
			PrivateKeyPath: writeTestKey(t),
		}

		opts, err := WarehouseOptions(cfg)
		require.NoError(t, err)
		assert.NotNil(t, opts.PrivateKey)
		assert.Empty(t, opts.Token)
	})

	t.Run("missing key file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth = config.AuthConfig{
			Method:         config.AuthMethodKeyPair,
			User:           "analyst",
			PrivateKeyPath: filepath.Join(t.TempDir(), "missing.p8"),
		}

		_, err := WarehouseOptions(cfg)
		assert.Error(t, err)
	})
}

func TestNewBackend_WithoutWarehouse(t *testing.T) {
	cfg := testConfig(t)

	b, err := NewBackend(cfg, nil, testLogger())
	require.NoError(t, err)
	defer b.Close()

	assert.NotNil(t, b.Chat)
	assert.False(t, b.Chat.HasWarehouse())
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	defer s.Shutdown(context.Background())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ready")
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	defer s.Shutdown(context.Background())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	s := newTestServer(t, cfg)
	defer s.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

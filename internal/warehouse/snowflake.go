// ABOUTME: Opens a Snowflake connection pool with the gosnowflake driver
// ABOUTME: Supports password, programmatic access token, and key-pair authentication

package warehouse

import (
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// Options describes the warehouse connection.
type Options struct {
	Account      string
	AccountURL   string
	User         string
	Password     string
	Token        string
	PrivateKey   *rsa.PrivateKey
	Role         string
	Warehouse    string
	Database     string
	Schema       string
	LoginTimeout time.Duration
}

// SnowflakeConfig maps Options onto the driver configuration.
// A private key selects JWT authentication; otherwise the password, or the
// programmatic access token in its place, is used.
func SnowflakeConfig(opts Options) (*gosnowflake.Config, error) {
	if opts.Account == "" {
		return nil, errors.New("warehouse: account is required")
	}
	if opts.User == "" {
		return nil, errors.New("warehouse: user is required")
	}

	cfg := &gosnowflake.Config{
		Account:      opts.Account,
		User:         opts.User,
		Role:         opts.Role,
		Warehouse:    opts.Warehouse,
		Database:     opts.Database,
		Schema:       opts.Schema,
		LoginTimeout: opts.LoginTimeout,
		Application:  "cortex-chat",
	}

	if opts.AccountURL != "" {
		host, err := hostFromURL(opts.AccountURL)
		if err != nil {
			return nil, err
		}
		cfg.Host = host
	}

	switch {
	case opts.PrivateKey != nil:
		cfg.Authenticator = gosnowflake.AuthTypeJwt
		cfg.PrivateKey = opts.PrivateKey
	case opts.Password != "":
		cfg.Password = opts.Password
	case opts.Token != "":
		cfg.Password = opts.Token
	default:
		return nil, errors.New("warehouse: no credentials configured")
	}

	return cfg, nil
}

// Open returns a connection pool for the configured warehouse. The pool
// connects lazily; call PingContext to verify credentials.
func Open(opts Options) (*sql.DB, error) {
	cfg, err := SnowflakeConfig(opts)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *cfg)), nil
}

func hostFromURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("warehouse: parsing account url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("warehouse: account url %q has no host", raw)
	}
	return u.Hostname(), nil
}

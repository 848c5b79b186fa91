// ABOUTME: Tests for the SQL executor and Snowflake connection config
// ABOUTME: Executor tests run against an in-memory SQLite database

package warehouse

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/2389/cortex-chat/internal/metrics"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE sales (region TEXT, total REAL);
		INSERT INTO sales VALUES ('EMEA', 10.5), ('AMER', 20), ('APAC', 7.25);
	`)
	require.NoError(t, err)
	return db
}

func TestNormalizeSQL(t *testing.T) {
	tests := map[string]string{
		"SELECT 1":      "SELECT 1",
		"  SELECT 1;  ": "SELECT 1",
		"SELECT 1;;\n":  "SELECT 1",
		"SELECT 1 ; ; ": "SELECT 1",
		"   ":           "",
		";":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSQL(in), "input %q", in)
	}
}

func TestSQLExecutor_Query(t *testing.T) {
	db := setupTestDB(t)
	exec := NewSQLExecutor(db, SQLExecutorOptions{})

	res, err := exec.Query(context.Background(), "SELECT region, total FROM sales ORDER BY total DESC;")
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "total"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []any{"AMER", 20.0}, res.Rows[0])
	assert.Equal(t, "APAC", res.Rows[2][0])
	assert.False(t, res.Truncated)
}

func TestSQLExecutor_RowCap(t *testing.T) {
	db := setupTestDB(t)
	exec := NewSQLExecutor(db, SQLExecutorOptions{MaxRows: 2})

	res, err := exec.Query(context.Background(), "SELECT region FROM sales")
	require.NoError(t, err)

	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
}

func TestSQLExecutor_EmptyResult(t *testing.T) {
	db := setupTestDB(t)
	exec := NewSQLExecutor(db, SQLExecutorOptions{})

	res, err := exec.Query(context.Background(), "SELECT region FROM sales WHERE total > 1000")
	require.NoError(t, err)

	assert.Equal(t, []string{"region"}, res.Columns)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
}

func TestSQLExecutor_Errors(t *testing.T) {
	db := setupTestDB(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	exec := NewSQLExecutor(db, SQLExecutorOptions{Metrics: m})

	_, err := exec.Query(context.Background(), "SELECT * FROM missing_table")
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "SELECT * FROM missing_table", qerr.Query)
	assert.Contains(t, err.Error(), "query failed")

	_, err = exec.Query(context.Background(), " ; ")
	assert.True(t, errors.Is(err, ErrEmptyQuery))

	_, err = exec.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WarehouseQueries.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WarehouseQueries.WithLabelValues("ok")))
}

func TestResult_ResultSet(t *testing.T) {
	res := &Result{
		Columns: []string{"A", "B"},
		Rows:    [][]any{{1, "x"}},
	}

	rs := res.ResultSet()
	assert.Equal(t, []string{"A", "B"}, rs.Columns())
	assert.Equal(t, res.Rows, rs.Data)
}

func TestSnowflakeConfig(t *testing.T) {
	t.Run("password", func(t *testing.T) {
		cfg, err := SnowflakeConfig(Options{
			Account:   "xy12345.us-east-1",
			User:      "analyst",
			Password:  "secret",
			Role:      "ANALYST",
			Warehouse: "WH",
			Database:  "SALES",
			Schema:    "PUBLIC",
		})
		require.NoError(t, err)
		assert.Equal(t, "xy12345.us-east-1", cfg.Account)
		assert.Equal(t, "secret", cfg.Password)
		assert.Equal(t, "WH", cfg.Warehouse)
		assert.Equal(t, "SALES", cfg.Database)
		assert.Equal(t, "PUBLIC", cfg.Schema)
		assert.Equal(t, "ANALYST", cfg.Role)
		assert.Nil(t, cfg.PrivateKey)
	})

	t.Run("token used as password", func(t *testing.T) {
		cfg, err := SnowflakeConfig(Options{Account: "a", User: "u", Token: "pat"})
		require.NoError(t, err)
		assert.Equal(t, "pat", cfg.Password)
	})

	t.Run("key pair", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		cfg, err := SnowflakeConfig(Options{Account: "a", User: "u", PrivateKey: key, Password: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, gosnowflake.AuthTypeJwt, cfg.Authenticator)
		assert.Same(t, key, cfg.PrivateKey)
		assert.Empty(t, cfg.Password)
	})

	t.Run("account url host", func(t *testing.T) {
		cfg, err := SnowflakeConfig(Options{
			Account:    "a",
			AccountURL: "https://myorg-acct.snowflakecomputing.com/",
			User:       "u",
			Password:   "p",
		})
		require.NoError(t, err)
		assert.Equal(t, "myorg-acct.snowflakecomputing.com", cfg.Host)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := SnowflakeConfig(Options{User: "u", Password: "p"})
		assert.Error(t, err)
		_, err = SnowflakeConfig(Options{Account: "a", Password: "p"})
		assert.Error(t, err)
		_, err = SnowflakeConfig(Options{Account: "a", User: "u"})
		assert.Error(t, err)
	})
}

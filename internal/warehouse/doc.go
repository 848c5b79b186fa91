// Package warehouse runs SQL produced by the analyst tool against the
// Snowflake warehouse.
//
// The agent returns generated SQL inside its tool results; the chat UI and
// the CLI offer to execute it directly. Executor is the narrow interface the
// callers depend on, SQLExecutor implements it over any database/sql pool,
// and Open builds that pool with the gosnowflake driver.
//
// Query failures come back as *QueryError and are shown next to the answer;
// they never undo the conversation turn that produced the SQL.
package warehouse

// Package server wires cortex-chat together and runs its HTTP listener.
//
// New opens the transcript store, builds the chat backend (agent
// credentials, the agent client and, when enabled, the warehouse pool),
// and registers the web routes plus:
//
//	GET /health/ready   database reachability
//	GET /metrics        Prometheus metrics, when metrics.enabled is set
//
// Run blocks until its context is canceled. Shutdown closes every session
// first, which ends open event streams and cancels running turns, then
// waits for turns to unwind before closing the store.
//
// The builder functions (NewCredentials, NewAgentClient, RequestConfig,
// WarehouseOptions, NewBackend) are exported for the command-line chat.
package server

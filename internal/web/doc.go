// Package web serves the browser chat UI.
//
// # Routes
//
//	GET  /             chat page with the session's history
//	POST /chat/send    start a turn (form: message, submission_id)
//	GET  /chat/stream  server-sent events for the session
//	POST /chat/reset   start a new conversation
//	POST /sql/run      run generated SQL on the warehouse (form: sql)
//	GET  /health       liveness and session count
//	GET  /static/      stylesheet and script, versioned by content hash
//
// # Sessions
//
// A browser is identified by the cortex_chat_session cookie, a random UUID
// issued on first visit. The cookie value doubles as the conversation ID,
// so a persisted transcript is picked up again after a restart.
//
// # Turn Lifecycle
//
// POST /chat/send reserves the conversation and answers 202 at once; the
// turn then runs in the background, bound to the session's context rather
// than the request's. Every render call becomes a named event published
// to all of the session's open /chat/stream connections:
//
//	turn-start    user bubble and an empty assistant container
//	region-open   a new content region inside the assistant container
//	region        replacement HTML for a region
//	collapse      close a region's <details> blocks
//	status        status line text; status-clear removes it
//	turn-error    error alert; turn-warning for recoverable problems
//	turn-end      outcome, request ID, and generated SQL
//
// A second send while a turn is running gets 409. A repeated submission_id
// within the dedupe window gets 200 and is otherwise ignored.
package web

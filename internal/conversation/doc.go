// Package conversation holds chat history and the sessions that own it.
//
// # Store
//
// Store is the Conversation Store: the ordered message history sent with every
// agent request. It is only ever appended to or popped from:
//
//	store.Append(ctx, agent.NewUserMessage(prompt))
//	...
//	store.Pop(ctx) // roll back the last entry after an error event
//
// A Persister (the SQLite store in production) receives every mutation as it
// happens. The in-memory history stays authoritative when persistence fails.
//
// BeginTurn gives one submission exclusive ownership of the store while its
// response streams, so two turns never interleave on the same history.
//
// # Hub
//
// Hub maps browser session IDs to Sessions. Each Session owns one Store and a
// context that background turns run in; the context is cancelled when the
// session is removed, reaped after DefaultIdleTimeout, or the hub is closed.
//
// The hub also fans out UI updates:
//
//	ch, _ := hub.Subscribe(r.Context(), sessionID)
//	hub.Publish(sessionID, conversation.Update{Event: "region", Data: html})
//
// Publish never blocks. A subscriber whose buffer is full misses updates.
package conversation

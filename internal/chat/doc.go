// Package chat runs one conversation turn end to end.
//
// A turn appends the user's prompt, sends the whole history to the agent,
// and hands the event stream to the stream reducer, which renders it and
// appends the final answer. Only one turn may be in flight per conversation.
//
// History stays consistent on every failure path: if the request fails
// before streaming, or the stream breaks off without a terminal event, the
// prompt is popped again so a retry never duplicates the turn. An error
// event pops it inside the reducer.
package chat

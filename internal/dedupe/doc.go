// Package dedupe guards the chat submit endpoint against double posts.
//
// Browsers retry form posts and users double-click; each submission carries
// a client-generated ID, and Guard.CheckAndMark rejects a repeat of the same
// (session, submission) pair within the TTL. A submission that fails before
// a turn starts is forgotten so the client may retry it.
package dedupe

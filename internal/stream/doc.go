// Package stream turns a sequence of agent events into render calls and
// conversation history updates.
//
// # Reducer
//
// Reducer.Run pulls events from a Source one at a time and applies them:
//
//   - Status replaces the waiting indicator
//   - TextDelta and ThinkingDelta append to the buffer of their content index
//     and rewrite that index's region with the whole buffer
//   - Thinking replaces the buffer with the final text and collapses the region
//   - ToolUse, ToolResult, Chart and Table overwrite their index's region
//   - Error shows the message, pops the last history entry and stops
//   - Response appends the final message; later events are read and ignored
//   - MessageDelta applies each item to its index: text appends, other items
//     replace, and tool_results show their text, search hits and SQL
//
// When the stream ends without a Response but after MessageDelta content,
// the gathered items become the assistant message and the turn completes.
// Ending with neither is OutcomeEndedWithoutResponse, which the chat service
// treats as a failed turn.
//
// Buffers and regions live only for one Run call. A frame that fails to
// decode is skipped with a warning and the stream continues; after a
// Response, malformed frames are dropped silently.
//
// # Renderer
//
// Renderer is the only drawing surface the reducer knows. It opens one region
// per content index and writes a Content value into it:
//
//	Markdown      accumulated answer text
//	ThinkingText  reasoning, expanded while streaming
//	JSONPayload   tool use and tool result payloads
//	ChartSpec     parsed chart specification
//	TableData     columns and rows of a result set
package stream

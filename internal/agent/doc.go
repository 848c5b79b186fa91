// Package agent speaks the analytics agent's run protocol.
//
// # Overview
//
// A run is one HTTP POST carrying the whole conversation. The service answers
// with a Server-Sent-Events stream of heterogeneous, typed events that describe
// the assistant's reply as it is produced.
//
// # Messages
//
// Message is the unit of conversation history. Its content is an ordered list
// of ContentItem values, a closed set of variants tagged by "type" on the wire:
//
//   - TextContent: markdown text
//   - ThinkingContent: the model's reasoning
//   - ToolUseContent / ToolResultContent: tool invocations and their results
//   - ChartContent: a chart spec serialized as JSON text
//   - TableContent: a result set with column metadata
//   - UnknownContent: any other type, kept verbatim
//
// # Requests
//
// BuildRunRequest turns history plus static configuration into the request
// body, binding the text-to-SQL tool ("analyst1") and the search tool
// ("search1") to their resources. A named agent object owns its tools, so
// callers leave ToolConfig empty for it and no tools are sent.
//
// # Events
//
// Decode maps an SSE (name, data) pair onto an Event:
//
//	response.status          Status
//	response.text.delta      TextDelta
//	response.thinking.delta  ThinkingDelta
//	response.thinking        Thinking
//	response.tool_use        ToolUse
//	response.tool_result     ToolResult
//	response.chart           Chart
//	response.table           Table
//	error                    Error
//	response                 Response
//	message.delta            MessageDelta
//
// The named-agent endpoint sends the response.* events. The inline endpoint
// (/api/v2/cortex/agent:run) sends only message.delta frames, each carrying
// content items under delta.content, and never sends a response event.
//
// Consumers handle events through Visitor, which has one method per variant.
// A *DecodeError covers exactly one frame and leaves the stream usable.
//
// # Client
//
//	client, err := agent.NewClient(agent.ClientOptions{
//	    BaseURL:     "https://acct.snowflakecomputing.com",
//	    Credentials: creds,
//	})
//	stream, err := client.Run(ctx, req)
//	defer stream.Close()
//	for {
//	    ev, err := stream.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// A non-2xx status is returned from Run as *StatusError before any event is
// read.
package agent

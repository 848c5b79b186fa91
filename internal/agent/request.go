// ABOUTME: Builds the agent-run request body from conversation history and tool config
// ABOUTME: Pure function of (messages, config); binds the text-to-SQL and search tools

package agent

import "maps"

// Tool types understood by the agent service.
const (
	ToolTypeTextToSQL = "cortex_analyst_text_to_sql"
	ToolTypeSearch    = "cortex_search"
)

// Tool names used to link tool specs to their resources.
const (
	AnalystToolName = "analyst1"
	SearchToolName  = "search1"
)

// DefaultSearchMaxResults is used when the search tool has no explicit limit.
const DefaultSearchMaxResults = 10

// ToolConfig binds the two agent tools to their resources.
type ToolConfig struct {
	// SemanticModelFile is the stage path of the semantic model YAML.
	SemanticModelFile string
	// SearchService is the fully qualified search service name.
	SearchService string
	// MaxResults limits the number of search hits.
	MaxResults int
}

// RequestConfig is the static part of every run request.
type RequestConfig struct {
	Model string
	Tools ToolConfig
	// Experimental is copied into the body unchanged when non-empty.
	Experimental map[string]any
}

// RunRequest is the JSON body POSTed to the agent run endpoint.
type RunRequest struct {
	Model         string                  `json:"model,omitempty"`
	Messages      []Message               `json:"messages"`
	Tools         []Tool                  `json:"tools,omitempty"`
	ToolResources map[string]ToolResource `json:"tool_resources,omitempty"`
	Experimental  map[string]any          `json:"experimental,omitempty"`
}

// Tool wraps a tool spec.
type Tool struct {
	ToolSpec ToolSpec `json:"tool_spec"`
}

// ToolSpec names a tool and its type.
type ToolSpec struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ToolResource is the resource binding for one tool.
type ToolResource struct {
	SemanticModelFile string `json:"semantic_model_file,omitempty"`
	Name              string `json:"name,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
}

// BuildRunRequest constructs a run request from the full conversation.
// Tools without a resource binding are left out.
func BuildRunRequest(messages []Message, cfg RequestConfig) RunRequest {
	req := RunRequest{
		Model:    cfg.Model,
		Messages: make([]Message, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = msg.Clone()
	}

	resources := make(map[string]ToolResource)

	if cfg.Tools.SemanticModelFile != "" {
		req.Tools = append(req.Tools, Tool{ToolSpec: ToolSpec{Type: ToolTypeTextToSQL, Name: AnalystToolName}})
		resources[AnalystToolName] = ToolResource{SemanticModelFile: cfg.Tools.SemanticModelFile}
	}

	if cfg.Tools.SearchService != "" {
		maxResults := cfg.Tools.MaxResults
		if maxResults <= 0 {
			maxResults = DefaultSearchMaxResults
		}
		req.Tools = append(req.Tools, Tool{ToolSpec: ToolSpec{Type: ToolTypeSearch, Name: SearchToolName}})
		resources[SearchToolName] = ToolResource{Name: cfg.Tools.SearchService, MaxResults: maxResults}
	}

	if len(resources) > 0 {
		req.ToolResources = resources
	}
	if len(cfg.Experimental) > 0 {
		req.Experimental = maps.Clone(cfg.Experimental)
	}
	return req
}

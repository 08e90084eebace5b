package llm

import "encoding/json"

// Chat roles accepted by the completion backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool choice modes. The backend picks tools on its own under "auto".
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// Message is one entry in the conversation sent to the completion backend.
// An assistant message carrying tool calls has no content; a tool message
// carries the id and capability name of the call it answers.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a completed tool invocation issued by the backend. Arguments is
// the raw argument text, expected to parse as JSON but not parsed until
// execution.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the capability and carries its raw argument text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition declares a capability to the backend.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a capability's signature. Parameters is JSON Schema.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}

// ToolChoice is the tool-selection hint sent with a round's request. It has
// exactly two variants: a mode string ("auto" or "none"), or a single forced
// function. Serialization is deliberate rather than structural: the mode
// variant encodes as a bare JSON string, the forced variant as an object.
type ToolChoice struct {
	Mode     string
	Function string
}

// MarshalJSON implements the two-variant wire encoding.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.Function != "" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Function},
		})
	}
	mode := tc.Mode
	if mode == "" {
		mode = ToolChoiceAuto
	}
	return json.Marshal(mode)
}

// ChatRequest is the per-round request body for the backend's chat
// completions endpoint. Tools, ToolChoice and ParseToolCalls are only set
// when search is enabled for the request.
type ChatRequest struct {
	Model          string           `json:"model"`
	Messages       []Message        `json:"messages"`
	Stream         bool             `json:"stream"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ToolChoice     *ToolChoice      `json:"tool_choice,omitempty"`
	ParseToolCalls bool             `json:"parse_tool_calls,omitempty"`
}

// StreamChunk is the envelope of one frame payload from the backend's
// streamed response.
type StreamChunk struct {
	Choices []struct {
		Delta Delta `json:"delta"`
	} `json:"choices"`
}

// Delta carries either a content fragment or tool-call fragments.
type Delta struct {
	Content   string          `json:"content"`
	ToolCalls []ToolCallDelta `json:"tool_calls"`
}

// ToolCallDelta is one tool-call fragment. Index is the backend-assigned
// slot; id, name and argument text arrive piecemeal across many payloads.
type ToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

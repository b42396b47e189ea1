package protocol

import (
	"encoding/json"
)

// Tool represents a tool in the MCP protocol
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams defines parameters for calling a tool. Arguments are kept
// raw so the registry can validate each value against the declared schema
// type instead of letting encoding/json coerce them.
type CallToolParams struct {
	Name      string                     `json:"name"`
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`
}

// TextContent is a single text block in a tool call result
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextContent creates a text content block
func NewTextContent(text string) TextContent {
	return TextContent{Type: "text", Text: text}
}

// CallToolResult defines the response for tool calls
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

package protocol

const (
	// ProtocolRevision is the MCP protocol revision this server speaks.
	ProtocolRevision = "2024-11-05"

	// Methods for lifecycle management
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"

	// Methods for server features
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
	MethodListResources = "resources/list"
	MethodListPrompts   = "prompts/list"

	// Methods for utilities
	MethodPing = "ping"
)

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string      `json:"protocolVersion"`
	Capabilities    interface{} `json:"capabilities,omitempty"`
	ClientInfo      *ClientInfo `json:"clientInfo,omitempty"`
}

// ClientInfo provides additional information about the client
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Capabilities advertises the server feature set. This server exposes tool
// invocation and discovery only.
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability describes the tools capability
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerInfo provides additional information about the server
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PingResult is the response for ping. Intentionally empty.
type PingResult struct{}

// ListResourcesResult is the response for resources/list. This server holds
// no resources; clients that probe the method get an empty list rather than
// an error.
type ListResourcesResult struct {
	Resources []interface{} `json:"resources"`
}

// ListPromptsResult is the response for prompts/list, always empty here.
type ListPromptsResult struct {
	Prompts []interface{} `json:"prompts"`
}

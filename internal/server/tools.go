package server

import (
	"encoding/json"
	"fmt"
)

// Tool represents an MCP tool definition. Each tool is defined exactly once
// here; the discovery response and argument validation both derive from the
// same definition so the two can never drift apart.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "test",
			Description: "Verify the server is responding. Echoes the supplied message back unchanged.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"message": map[string]interface{}{
						"type":        "string",
						"description": "Text to echo back",
					},
				},
				"required": []string{"message"},
			},
		},
		{
			Name:        "analyze_image",
			Description: "Analyze a local image file with the moondream vision model. The prompt selects the operation: \"generate caption\" produces a caption, \"detect: <object>\" locates the named object, and anything else is answered as a question about the image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"prompt": map[string]interface{}{
						"type":        "string",
						"description": "What to do with the image: \"generate caption\", \"detect: <object>\", or a free-form question",
					},
				},
				"required": []string{"image_path", "prompt"},
			},
		},
		{
			Name:        "analyze_webpage",
			Description: "Capture a screenshot of a web page and answer a question about the rendered result with the moondream vision model.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "Page to analyze. Defaults to the configured placeholder URL",
					},
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Question to answer about the rendered page",
					},
					"waitTime": map[string]interface{}{
						"type":        "number",
						"description": "Milliseconds to wait for page content before capturing. Default 15000",
						"default":     15000,
					},
					"viewport": map[string]interface{}{
						"type":        "object",
						"description": "Browser viewport size. Maximum 2560x1440, default 1280x720",
						"properties": map[string]interface{}{
							"width":  map[string]interface{}{"type": "number"},
							"height": map[string]interface{}{"type": "number"},
						},
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// RequiredArgs returns the argument names the tool's schema declares as
// required.
func (t Tool) RequiredArgs() []string {
	req, _ := t.InputSchema["required"].([]string)
	return req
}

// validateArgs checks a raw argument payload against the tool's schema:
// every required argument must be present, and required strings must be
// non-empty.
func validateArgs(tool Tool, raw json.RawMessage) error {
	args := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	for _, name := range tool.RequiredArgs() {
		value, ok := args[name]
		if !ok || value == nil {
			return fmt.Errorf("missing required argument: %s", name)
		}
		if str, isString := value.(string); isString && str == "" {
			return fmt.Errorf("required argument is empty: %s", name)
		}
	}
	return nil
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": s.tools,
		},
	}
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sightbridge/moondream-mcp/internal/browser"
	"github.com/sightbridge/moondream-mcp/internal/imaging"
	"github.com/sightbridge/moondream-mcp/internal/moondream"
)

const (
	// captureAttempts is the call-level retry around the whole
	// capture-and-query flow, separate from the pipeline's own
	// navigation retries.
	captureAttempts   = 3
	captureRetryDelay = 2 * time.Second
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "analyze_image").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<result text>"}]
//	}
//
// Unknown tools and argument validation failures return protocol errors
// (code -32602); tool execution failures return code -32000. Either way the
// server keeps serving subsequent calls.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	tool, ok := s.toolIdx[params.Name]
	if !ok {
		return s.errorResponse(req.ID, -32602, "Unknown tool", fmt.Sprintf("unknown tool: %s", params.Name))
	}
	if err := validateArgs(tool, params.Arguments); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid arguments", err.Error())
	}

	text, err := s.executeTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "test":
		return s.handleTest(args)
	case "analyze_image":
		return s.handleAnalyzeImage(ctx, args)
	case "analyze_webpage":
		return s.handleAnalyzeWebpage(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

type testArgs struct {
	Message string `json:"message"`
}

// handleTest echoes the message back without touching the backend or the
// browser.
func (s *Server) handleTest(args json.RawMessage) (string, error) {
	var a testArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", err
	}
	return a.Message, nil
}

type analyzeImageArgs struct {
	ImagePath string `json:"image_path"`
	Prompt    string `json:"prompt"`
}

// handleAnalyzeImage encodes a local image file and runs one inference
// against it. The prompt decides which backend endpoint answers.
func (s *Server) handleAnalyzeImage(ctx context.Context, args json.RawMessage) (string, error) {
	var a analyzeImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", err
	}

	imageURL, err := imaging.EncodeImageFile(a.ImagePath)
	if err != nil {
		return "", err
	}

	cmd := moondream.ClassifyPrompt(a.Prompt)
	s.log.Info("analyzing image",
		zap.String("path", a.ImagePath),
		zap.Stringer("command", cmd.Kind))
	return s.backend.Analyze(ctx, imageURL, cmd)
}

type analyzeWebpageArgs struct {
	URL      string          `json:"url"`
	Query    string          `json:"query"`
	WaitTime float64         `json:"waitTime"`
	Viewport json.RawMessage `json:"viewport"`
}

// handleAnalyzeWebpage captures a screenshot of the page and asks the
// backend the caller's question about it. The whole capture-and-query flow
// retries on failure.
func (s *Server) handleAnalyzeWebpage(ctx context.Context, args json.RawMessage) (string, error) {
	var a analyzeWebpageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", err
	}

	target := a.URL
	if target == "" {
		target = s.cfg.Browser.PlaceholderURL
	}
	wait := s.cfg.Browser.DefaultWait()
	if a.WaitTime > 0 {
		wait = time.Duration(a.WaitTime) * time.Millisecond
	}
	vp := browser.ParseViewport(a.Viewport)

	s.log.Info("analyzing webpage",
		zap.String("url", target),
		zap.Duration("wait", wait),
		zap.Int("width", vp.Width),
		zap.Int("height", vp.Height))

	var lastErr error
	for attempt := 1; attempt <= captureAttempts; attempt++ {
		text, err := s.captureAndQuery(ctx, target, a.Query, wait, vp)
		if err == nil {
			return text, nil
		}
		lastErr = err
		s.log.Warn("webpage analysis attempt failed",
			zap.Int("attempt", attempt),
			zap.String("url", target),
			zap.Error(err))
		if attempt < captureAttempts {
			time.Sleep(s.retryDelay)
		}
	}
	return "", fmt.Errorf("analyze webpage %s: %w", target, lastErr)
}

// captureAndQuery is one attempt of the screenshot-then-ask flow.
func (s *Server) captureAndQuery(ctx context.Context, target, query string, wait time.Duration, vp browser.Viewport) (string, error) {
	path, err := s.capturer.Capture(ctx, target, wait, vp)
	if err != nil {
		return "", err
	}

	imageURL, err := imaging.EncodeImageFile(path)
	if err != nil {
		return "", err
	}
	return s.backend.Query(ctx, imageURL, query)
}

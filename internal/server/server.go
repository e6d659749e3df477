package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sightbridge/moondream-mcp/internal/browser"
	"github.com/sightbridge/moondream-mcp/internal/config"
	"github.com/sightbridge/moondream-mcp/internal/moondream"
)

// Backend answers inference requests about an encoded image.
type Backend interface {
	Analyze(ctx context.Context, imageURL string, cmd moondream.Command) (string, error)
	Query(ctx context.Context, imageURL, question string) (string, error)
}

// Capturer turns a URL into a saved screenshot file.
type Capturer interface {
	Capture(ctx context.Context, url string, wait time.Duration, vp browser.Viewport) (string, error)
}

// Server handles MCP protocol communication
type Server struct {
	cfg      config.Config
	log      *zap.Logger
	backend  Backend
	capturer Capturer

	tools   []Tool
	toolIdx map[string]Tool

	// retryDelay spaces the call-level capture retries; tests shrink it.
	retryDelay time.Duration
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance wired to the given backend client
// and screenshot capturer.
func New(cfg config.Config, backend Backend, capturer Capturer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	tools := GetToolDefinitions()
	idx := make(map[string]Tool, len(tools))
	for _, t := range tools {
		idx[t.Name] = t
	}
	return &Server{
		cfg:        cfg,
		log:        logger.With(zap.String("component", "server")),
		backend:    backend,
		capturer:   capturer,
		tools:      tools,
		toolIdx:    idx,
		retryDelay: captureRetryDelay,
	}
}

// Run starts the MCP server, reading from stdin and writing to stdout.
// Stdout carries only protocol frames; everything else goes to the logger.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(os.Stdin)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("failed to parse request", zap.Error(err))
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.Error("failed to encode response", zap.Error(err))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "moondream-mcp",
				"version": "0.1.0",
			},
		},
	}
}

// Package server implements the MCP (Model Context Protocol) server for
// Moondream vision analysis tools.
//
// This package provides a JSON-RPC 2.0 server that exposes local vision
// inference through the MCP protocol. It's designed to work with Claude and
// other MCP-compatible clients, letting AI systems look at images and live
// web pages through a locally hosted model.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Nothing but protocol frames may be written to stdout; all logging goes to
// stderr so the client's parser never sees it.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// The server provides exactly three tools:
//   - test: Echo a message back, for connectivity checks
//   - analyze_image: Run caption, detection or free-form Q&A on a local
//     image file
//   - analyze_webpage: Capture a screenshot of a URL in a headless browser
//     and ask the model a question about it
//
// Each tool is defined exactly once, in GetToolDefinitions. Both tools/list
// discovery and tools/call argument validation read from that single
// definition, so the advertised schema can never drift from what the
// validator enforces.
//
// # Prompt Routing
//
// analyze_image routes its prompt to one of three backend endpoints. The
// exact prompt "generate caption" (case-insensitive) becomes a caption
// request, a "detect:" prefix becomes an object detection request for the
// trimmed remainder, and anything else is sent verbatim as a question. See
// the moondream package for the classification rules.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32602 for invalid or missing arguments and unknown tools,
//     -32000 for tool execution failures
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A failing tool call never crashes the server; the connection stays up and
// the next request is served normally.
//
// # Usage
//
// The server is typically started by an MCP client:
//
//	srv := server.New(cfg, backend, capturer, logger)
//	if err := srv.Run(); err != nil {
//	    logger.Fatal("server terminated", zap.Error(err))
//	}
//
// The backend must be set up (see moondream.Supervisor) before Run is
// called, so the first tool call never races model provisioning.
package server

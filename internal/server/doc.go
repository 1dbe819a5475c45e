// Package server implements the MCP (Model Context Protocol) server for
// bubble-sheet evaluation.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Keys:
//   - omr_load_key: Load answer-key CSV files (one per variant) under a name
//
// Evaluation:
//   - omr_evaluate: Score one sheet photo, optionally with debug artifacts
//   - omr_evaluate_batch: Score many sheets on a worker pool with statistics
//
// Inspection:
//   - omr_rectify: Return the perspective-corrected sheet (or a region of it)
//   - omr_grid_overlay: Draw located bubbles, fill scores and anchors
//   - omr_render_sheet: Render a blank printable template
//
// Persistence:
//   - omr_results: List, count or delete stored results (needs a database)
//
// # Keys
//
// Keys loaded with omr_load_key live in memory for the lifetime of the
// process and are referenced by name from the evaluation tools. The name
// "default" is used when none is given.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: the Go error string, prefixed by its kind (geometry,
//     grid_alignment, invalid_key, cancelled, io, unknown)
package server

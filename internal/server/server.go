package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/omr-eval/internal/imaging"
	"github.com/ironsheep/omr-eval/internal/omr"
	"github.com/ironsheep/omr-eval/internal/store"
)

// Server handles MCP protocol communication
type Server struct {
	cache   *imaging.ImageCache
	grid    omr.GridConfig
	workers int
	log     logrus.FieldLogger
	results *store.ResultRepo

	variantDetector omr.VariantDetector
	sheetIDReader   omr.SheetIDReader
	version         string

	mu   sync.RWMutex
	keys map[string]*omr.KeySet
}

// Options configures a Server. Zero values select the default grid, one
// worker and a discarding logger; a nil Results disables persistence.
type Options struct {
	Grid            omr.GridConfig
	Workers         int
	Logger          logrus.FieldLogger
	Results         *store.ResultRepo
	VariantDetector omr.VariantDetector
	SheetIDReader   omr.SheetIDReader
	Version         string
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

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.Grid.Subjects == nil {
		opts.Grid = omr.DefaultGridConfig()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		cache:           imaging.NewImageCache(),
		grid:            opts.Grid,
		workers:         opts.Workers,
		log:             opts.Logger,
		results:         opts.Results,
		variantDetector: opts.VariantDetector,
		sheetIDReader:   opts.SheetIDReader,
		version:         opts.Version,
		keys:            make(map[string]*omr.KeySet),
	}
}

// Run serves MCP over stdin and stdout until stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to w.
// Lines have no length limit, so inline photos of any size get through.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	encoder := json.NewEncoder(w)

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read error: %w", readErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			s.serveLine(ctx, line, encoder)
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

func (s *Server) serveLine(ctx context.Context, line []byte, encoder *json.Encoder) {
	var req MCPRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.WithError(err).WithField("bytes", len(line)).Warn("failed to parse request")
		return
	}

	resp := s.handleRequest(ctx, &req)
	if resp != nil {
		if err := encoder.Encode(resp); err != nil {
			s.log.WithError(err).Error("failed to encode response")
		}
	}
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
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
				"name":    "omr-eval",
				"version": s.version,
			},
		},
	}
}

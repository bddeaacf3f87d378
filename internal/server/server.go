package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-enhance-mcp/internal/api"
	"github.com/ironsheep/image-enhance-mcp/internal/batch"
	"github.com/ironsheep/image-enhance-mcp/internal/config"
	"github.com/ironsheep/image-enhance-mcp/internal/enhance"
	"github.com/ironsheep/image-enhance-mcp/internal/imaging"
)

// Version is reported in the initialize handshake.
var Version = "0.1.0"

// Server handles MCP protocol communication
type Server struct {
	client  *api.Client
	loader  *imaging.Loader
	enhance *enhance.Manager
	poller  *batch.Poller
	logger  logrus.FieldLogger

	pollOnce sync.Once
	pollCtx  context.Context
	stopPoll context.CancelFunc
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

// New creates a server wired to the image server at cfg.BaseURL.
func New(cfg *config.Config, logger logrus.FieldLogger) (*Server, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client, err := api.NewClient(cfg.BaseURL, api.WithLogger(logger.WithField("component", "api")))
	if err != nil {
		return nil, err
	}
	loader := imaging.NewLoader(cfg.FetchTimeout)

	manager := enhance.NewManager(loader, client, enhance.Options{
		JPEGQuality: cfg.JPEGQuality,
		SaveTimeout: cfg.SaveTimeout,
		Logger:      logger.WithField("component", "enhance"),
	})
	poller := batch.NewPoller(client, cfg.PollInterval, logger.WithField("component", "batch"))

	pollCtx, stop := context.WithCancel(context.Background())
	return &Server{
		client:   client,
		loader:   loader,
		enhance:  manager,
		poller:   poller,
		logger:   logger,
		pollCtx:  pollCtx,
		stopPoll: stop,
	}, nil
}

// Close stops background batch polling.
func (s *Server) Close() {
	s.stopPoll()
}

// Run serves MCP over stdin and stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from in and writes responses to
// out. Requests are read in order. Tool calls that wait on the image server
// run in the background, so their responses can arrive after those of later
// requests; clients match them by id.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.stopPoll()
	s.pollCtx, s.stopPoll = context.WithCancel(ctx)
	defer s.stopPoll()

	scanner := bufio.NewScanner(in)
	// Data URIs and base64 previews make for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 32*1024*1024)

	w := &responseWriter{enc: json.NewEncoder(out), logger: s.logger}
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.WithError(err).Warn("failed to parse request")
			continue
		}

		if runsInBackground(&req) {
			inflight.Add(1)
			go func(req *MCPRequest) {
				defer inflight.Done()
				w.write(s.handleRequest(ctx, req))
			}(&req)
			continue
		}
		w.write(s.handleRequest(ctx, &req))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// backgroundTools wait on the image server and touch no state that later
// requests depend on being settled. enhance_save is resolved by the
// manager's stale-response guard if the session changes meanwhile.
var backgroundTools = map[string]bool{
	"enhance_save":      true,
	"image_info":        true,
	"image_upload":      true,
	"batch_create":      true,
	"batch_list":        true,
	"batch_status":      true,
	"component_delete":  true,
	"components_delete": true,
}

// runsInBackground reports whether req is a tool call that Serve should not
// wait for before reading the next request.
func runsInBackground(req *MCPRequest) bool {
	if req.Method != "tools/call" {
		return false
	}
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return false
	}
	return backgroundTools[params.Name]
}

// responseWriter serializes responses written from several goroutines.
type responseWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger logrus.FieldLogger
}

func (w *responseWriter) write(resp *MCPResponse) {
	if resp == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(resp); err != nil {
		w.logger.WithError(err).Error("failed to encode response")
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
				"name":    "image-enhance-mcp",
				"version": Version,
			},
		},
	}
}

// startPolling begins background batch polling the first time a batch tool
// is used. Polling stops when the serving context ends.
func (s *Server) startPolling() {
	s.pollOnce.Do(func() {
		ctx := s.pollCtx
		go func() {
			if err := s.poller.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Warn("batch polling stopped")
			}
		}()
		s.logger.WithField("interval", s.poller.Interval()).Debug("batch polling started")
	})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/image-enhance-mcp/internal/api"
	"github.com/ironsheep/image-enhance-mcp/internal/enhance"
	"github.com/ironsheep/image-enhance-mcp/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "enhance_select", "enhance_apply").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	log := s.logger.WithField("tool", params.Name).WithField("duration", time.Since(start))
	if err != nil {
		log.WithError(err).Info("tool call failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	log.Debug("tool call completed")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Enhancement Session
	case "enhance_select":
		return s.handleEnhanceSelect(ctx, args)
	case "enhance_apply":
		return s.handleEnhanceApply(args)
	case "enhance_reset":
		return s.enhance.Reset()
	case "enhance_save":
		return s.handleEnhanceSave(ctx)
	case "enhance_status":
		return s.handleEnhanceStatus()
	case "enhance_discard":
		return map[string]interface{}{"discarded": s.enhance.Discard()}, nil

	// Inspection
	case "enhance_preview":
		return s.handleEnhancePreview(args)
	case "enhance_diff":
		return s.handleEnhanceDiff()
	case "enhance_sample_color":
		return s.handleEnhanceSampleColor(args)
	case "image_info":
		return s.handleImageInfo(ctx, args)

	// Image Server
	case "image_upload":
		return s.handleImageUpload(ctx, args)
	case "batch_create":
		return s.handleBatchCreate(ctx, args)
	case "batch_list":
		return s.handleBatchList(ctx, args)
	case "batch_status":
		return s.handleBatchStatus(ctx, args)
	case "component_delete":
		return s.handleComponentDelete(ctx, args)
	case "components_delete":
		return s.handleComponentsDelete(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
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

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments. Missing arguments decode as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Enhancement Session Handlers ===

type enhanceSelectArgs struct {
	Target string `json:"target"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

func (s *Server) handleEnhanceSelect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a enhanceSelectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Target == "" {
		return nil, errors.New("target is required")
	}

	switch {
	case a.Path != "":
		return s.enhance.Select(ctx, a.Target, imaging.Source{Path: a.Path})
	case a.URL != "":
		return s.enhance.Select(ctx, a.Target, imaging.Source{URL: s.client.ResolveURL(a.URL)})
	}

	// Re-enhancing a saved image starts from what is displayed now.
	if _, ok := s.enhance.Displayed(a.Target); ok {
		return s.enhance.SelectDisplayed(ctx, a.Target)
	}
	return s.enhance.Select(ctx, a.Target, imaging.Source{URL: s.client.ResolveURL(a.Target)})
}

type enhanceApplyArgs struct {
	Filter string `json:"filter"`
}

func (s *Server) handleEnhanceApply(args json.RawMessage) (interface{}, error) {
	var a enhanceApplyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.enhance.Apply(imaging.Filter(a.Filter))
}

type enhanceSaveResult struct {
	*enhance.SaveResult
	Saved     bool   `json:"saved"`
	Displayed string `json:"displayed"`
}

func (s *Server) handleEnhanceSave(ctx context.Context) (interface{}, error) {
	res, err := s.enhance.Save(ctx)
	if err != nil {
		return nil, err
	}
	return &enhanceSaveResult{
		SaveResult: res,
		Saved:      true,
		Displayed:  enhance.DescribeReference(res.Reference),
	}, nil
}

type enhanceStatusResult struct {
	Active  bool            `json:"active"`
	Message string          `json:"message,omitempty"`
	Session *enhance.Status `json:"session,omitempty"`
}

func (s *Server) handleEnhanceStatus() (interface{}, error) {
	st, err := s.enhance.Status()
	if errors.Is(err, enhance.ErrNoSession) {
		return &enhanceStatusResult{Message: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &enhanceStatusResult{Active: true, Session: st}, nil
}

// === Inspection Handlers ===

type enhancePreviewArgs struct {
	Scale float64 `json:"scale"`
}

func (s *Server) handleEnhancePreview(args json.RawMessage) (interface{}, error) {
	var a enhancePreviewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	var res *imaging.PreviewResult
	err := s.enhance.Inspect(func(working, _ *imaging.PixelBuffer) error {
		var err error
		res, err = imaging.Preview(working, a.Scale)
		return err
	})
	return res, err
}

func (s *Server) handleEnhanceDiff() (interface{}, error) {
	var res *imaging.DiffResult
	err := s.enhance.Inspect(func(working, original *imaging.PixelBuffer) error {
		var err error
		res, err = imaging.Diff(working, original)
		return err
	})
	return res, err
}

type enhanceSampleColorArgs struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	Original bool `json:"original"`
}

func (s *Server) handleEnhanceSampleColor(args json.RawMessage) (interface{}, error) {
	var a enhanceSampleColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var res *imaging.ColorResult
	err := s.enhance.Inspect(func(working, original *imaging.PixelBuffer) error {
		buf := working
		if a.Original {
			buf = original
		}
		var err error
		res, err = imaging.SampleColor(buf, a.X, a.Y)
		return err
	})
	return res, err
}

type imageInfoArgs struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

func (s *Server) handleImageInfo(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	switch {
	case a.Path != "":
		return s.loader.Info(ctx, imaging.Source{Path: a.Path})
	case a.URL != "":
		return s.loader.Info(ctx, imaging.Source{URL: s.client.ResolveURL(a.URL)})
	}
	return nil, errors.New("path or url is required")
}

// === Image Server Handlers ===

// openUploads opens every path for a multipart upload. The returned func
// closes whatever was opened.
func openUploads(paths []string) ([]api.UploadFile, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]api.UploadFile, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to open image: %w", err)
		}
		opened = append(opened, f)
		files = append(files, api.UploadFile{Name: filepath.Base(p), Reader: f})
	}
	return files, closeAll, nil
}

type imageUploadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageUpload(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageUploadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}

	files, closeAll, err := openUploads([]string{a.Path})
	if err != nil {
		return nil, err
	}
	defer closeAll()

	if err := s.client.Detect(ctx, files[0]); err != nil {
		return nil, err
	}
	return map[string]interface{}{"uploaded": true, "filename": files[0].Name}, nil
}

type batchCreateArgs struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleBatchCreate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a batchCreateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("at least one path is required")
	}

	files, closeAll, err := openUploads(a.Paths)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	res, err := s.client.CreateBatch(ctx, files)
	if err != nil {
		return nil, err
	}
	s.startPolling()
	return res, nil
}

type batchListArgs struct {
	Refresh bool `json:"refresh"`
}

func (s *Server) handleBatchList(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a batchListArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	s.startPolling()

	snap := s.poller.Snapshot()
	if a.Refresh || snap.Seq == 0 {
		var err error
		if snap, err = s.poller.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

type batchStatusArgs struct {
	BatchID string `json:"batch_id"`
}

type batchStatusResult struct {
	*api.Batch
	Done           bool    `json:"done"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

func (s *Server) handleBatchStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a batchStatusArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BatchID == "" {
		return nil, errors.New("batch_id is required")
	}

	b, err := s.client.BatchStatus(ctx, a.BatchID)
	if err != nil {
		return nil, err
	}
	return &batchStatusResult{
		Batch:          b,
		Done:           b.Done(),
		ElapsedSeconds: b.Elapsed(time.Now()).Seconds(),
	}, nil
}

type componentDeleteArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleComponentDelete(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a componentDeleteArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.client.DeleteComponent(ctx, a.Path); err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": a.Path}, nil
}

type componentsDeleteArgs struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleComponentsDelete(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a componentsDeleteArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("at least one path is required")
	}
	return s.client.DeleteComponents(ctx, a.Paths)
}

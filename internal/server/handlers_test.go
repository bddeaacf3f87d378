package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// createTestImageFile creates a test image file and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "handler-test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, solidImage(width, height, c)); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func solidImage(width, height int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// imageServer fakes the web application the tools talk to.
type imageServer struct {
	mu       sync.Mutex
	saves    []map[string]string
	uploads  []string
	deleted  []string
	saveBody string

	// When saveGate is set, each save signals saveBegan and then waits
	// for the gate to close.
	saveGate  chan struct{}
	saveBegan chan struct{}
}

func (f *imageServer) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/static/uploads/{name}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "name") != "stored.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, solidImage(6, 4, color.NRGBA{10, 20, 30, 255}))
	})

	r.Post("/save-enhanced-image", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(8 << 20)
		f.mu.Lock()
		f.saves = append(f.saves, map[string]string{
			"enhanced_image": r.FormValue("enhanced_image"),
			"original_path":  r.FormValue("original_path"),
		})
		body, gate, began := f.saveBody, f.saveGate, f.saveBegan
		f.mu.Unlock()
		if gate != nil {
			began <- struct{}{}
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if body == "" {
			body = `{"success": true}`
		}
		io.WriteString(w, body)
	})

	r.Post("/detect", func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, hdr.Filename)
		f.mu.Unlock()
		io.WriteString(w, "<html>results</html>")
	})

	r.Post("/create_batch", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(8 << 20)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"batch_id":    "20240101_120000",
			"image_count": len(r.MultipartForm.File["images"]),
		})
	})

	r.Get("/get_all_batches", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "batches": {
			"20240101_120000": {"id": "20240101_120000", "status": "processing", "progress": 50,
				"start_time": 1700000000, "end_time": null, "images": []}}}`)
	})

	r.Get("/get_batch_status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "20240101_120000" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"success": false, "error": "Batch not found"}`)
			return
		}
		io.WriteString(w, `{"success": true, "batch": {"id": "20240101_120000", "status": "completed",
			"progress": 100, "success_count": 2, "start_time": 1700000000, "end_time": 1700000030}}`)
	})

	r.Post("/delete_component", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Path == "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"success": false, "error": "No path specified"}`)
			return
		}
		f.mu.Lock()
		f.deleted = append(f.deleted, req.Path)
		f.mu.Unlock()
		io.WriteString(w, `{"success": true}`)
	})

	r.Post("/delete_components", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Paths []string `json:"paths"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       true,
			"deleted_count": len(req.Paths),
			"total":         len(req.Paths),
		})
	})

	return r
}

func (f *imageServer) recorded() (saves []map[string]string, uploads, deleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(saves, f.saves...), append(uploads, f.uploads...), append(deleted, f.deleted...)
}

func newServerWithBackend(t *testing.T) (*Server, *imageServer) {
	t.Helper()
	fake := &imageServer{}
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)
	return newTestServer(t, srv.URL), fake
}

// callTool issues a tools/call request and returns the response.
func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// toolResult calls a tool that must succeed and decodes its text content.
func toolResult(t *testing.T, s *Server, name string, args interface{}) map[string]interface{} {
	t.Helper()

	resp := callTool(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %v (%v)", name, resp.Error.Message, resp.Error.Data)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("%s: result should be a map", name)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("%s: expected one content block, got %v", name, result["content"])
	}
	if content[0]["type"] != "text" {
		t.Errorf("%s: content type: got %v", name, content[0]["type"])
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &out); err != nil {
		t.Fatalf("%s: content is not JSON: %v", name, err)
	}
	return out
}

// toolError calls a tool that must fail and returns the error data string.
func toolError(t *testing.T, s *Server, name string, args interface{}) string {
	t.Helper()

	resp := callTool(t, s, name, args)
	if resp.Error == nil {
		t.Fatalf("%s: expected error, got %v", name, resp.Result)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("%s: error code: got %d, want -32000", name, resp.Error.Code)
	}
	if resp.Error.Message != "Tool execution failed" {
		t.Errorf("%s: error message: got %q", name, resp.Error.Message)
	}
	data, _ := resp.Error.Data.(string)
	return data
}

func TestHandleToolsCall_EnhancementSession(t *testing.T) {
	s, _ := newServerWithBackend(t)
	imgPath := createTestImageFile(t, 8, 5, color.NRGBA{100, 150, 200, 255})

	st := toolResult(t, s, "enhance_select", map[string]interface{}{
		"target": "/static/uploads/photo.jpg",
		"path":   imgPath,
	})
	if st["width"] != float64(8) || st["height"] != float64(5) {
		t.Errorf("dimensions: got %vx%v", st["width"], st["height"])
	}
	if st["target"] != "/static/uploads/photo.jpg" || st["modified"] != false {
		t.Errorf("unexpected status: %v", st)
	}

	st = toolResult(t, s, "enhance_apply", map[string]interface{}{"filter": "brightness"})
	if st["modified"] != true {
		t.Error("brightness should modify the working buffer")
	}
	applied, _ := st["applied"].([]interface{})
	if len(applied) != 1 || applied[0] != "brightness" {
		t.Errorf("applied: got %v", st["applied"])
	}

	c := toolResult(t, s, "enhance_sample_color", map[string]interface{}{"x": 3, "y": 2})
	if c["hex"] != "#78B4F0" {
		t.Errorf("brightened color: got %v, want #78B4F0", c["hex"])
	}
	orig := toolResult(t, s, "enhance_sample_color", map[string]interface{}{"x": 3, "y": 2, "original": true})
	if orig["hex"] != "#6496C8" {
		t.Errorf("original color: got %v, want #6496C8", orig["hex"])
	}

	diff := toolResult(t, s, "enhance_diff", nil)
	if diff["changed_pixels"] != float64(40) {
		t.Errorf("changed_pixels: got %v, want 40", diff["changed_pixels"])
	}

	preview := toolResult(t, s, "enhance_preview", map[string]interface{}{"scale": 2.0})
	if preview["width"] != float64(16) || preview["mime_type"] != "image/png" {
		t.Errorf("unexpected preview: width=%v mime=%v", preview["width"], preview["mime_type"])
	}

	st = toolResult(t, s, "enhance_reset", nil)
	if st["modified"] != false {
		t.Error("reset should restore the original")
	}

	status := toolResult(t, s, "enhance_status", nil)
	if status["active"] != true {
		t.Errorf("status should be active: %v", status)
	}

	if got := toolResult(t, s, "enhance_discard", nil); got["discarded"] != true {
		t.Errorf("discard: got %v", got)
	}
	status = toolResult(t, s, "enhance_status", nil)
	if status["active"] != false || status["message"] != "please select an image to enhance first" {
		t.Errorf("status after discard: %v", status)
	}
}

func TestHandleToolsCall_SaveAndReselect(t *testing.T) {
	s, fake := newServerWithBackend(t)
	imgPath := createTestImageFile(t, 1, 1, color.NRGBA{90, 90, 90, 255})

	toolResult(t, s, "enhance_select", map[string]interface{}{"target": "/foo.jpg", "path": imgPath})
	toolResult(t, s, "enhance_apply", map[string]interface{}{"filter": "grayscale"})

	res := toolResult(t, s, "enhance_save", nil)
	if res["saved"] != true || res["target"] != "/foo.jpg" {
		t.Errorf("unexpected save result: %v", res)
	}
	if _, ok := res["Reference"]; ok {
		t.Error("full reference should not be emitted")
	}
	displayed, _ := res["displayed"].(string)
	if !strings.HasPrefix(displayed, "data:image/jpeg;base64,...?t=") {
		t.Errorf("displayed: got %q", displayed)
	}

	saves, _, _ := fake.recorded()
	if len(saves) != 1 {
		t.Fatalf("expected 1 save request, got %d", len(saves))
	}
	if saves[0]["original_path"] != "/foo.jpg" {
		t.Errorf("original_path: got %q", saves[0]["original_path"])
	}
	if !strings.HasPrefix(saves[0]["enhanced_image"], "data:image/jpeg;base64,") {
		t.Errorf("enhanced_image should be a JPEG data URI")
	}

	if status := toolResult(t, s, "enhance_status", nil); status["active"] != false {
		t.Error("a successful save should end the session")
	}

	// With no path or url the saved encoding is loaded again.
	st := toolResult(t, s, "enhance_select", map[string]interface{}{"target": "/foo.jpg"})
	if st["width"] != float64(1) || st["source"] != "data URI" {
		t.Errorf("reselect: got %v", st)
	}
}

func TestHandleToolsCall_SaveRejected(t *testing.T) {
	s, fake := newServerWithBackend(t)
	fake.mu.Lock()
	fake.saveBody = `{"success": false, "error": "disk full"}`
	fake.mu.Unlock()
	imgPath := createTestImageFile(t, 2, 2, color.NRGBA{1, 2, 3, 255})

	toolResult(t, s, "enhance_select", map[string]interface{}{"target": "/foo.jpg", "path": imgPath})
	toolResult(t, s, "enhance_apply", map[string]interface{}{"filter": "contrast"})

	data := toolError(t, s, "enhance_save", nil)
	if data != "error saving enhanced image: disk full" {
		t.Errorf("error data: got %q", data)
	}

	status := toolResult(t, s, "enhance_status", nil)
	if status["active"] != true {
		t.Fatal("a failed save should keep the session")
	}
	session := status["session"].(map[string]interface{})
	if session["modified"] != true || session["saving"] != false {
		t.Errorf("session after failed save: %v", session)
	}
}

func TestHandleToolsCall_SelectFromServer(t *testing.T) {
	s, _ := newServerWithBackend(t)

	st := toolResult(t, s, "enhance_select", map[string]interface{}{"target": "/static/uploads/stored.png"})
	if st["width"] != float64(6) || st["height"] != float64(4) {
		t.Errorf("dimensions: got %vx%v", st["width"], st["height"])
	}
	if !strings.HasSuffix(st["source"].(string), "/static/uploads/stored.png") {
		t.Errorf("source: got %v", st["source"])
	}

	info := toolResult(t, s, "image_info", map[string]interface{}{"url": "/static/uploads/stored.png"})
	if info["format"] != "png" || info["width"] != float64(6) {
		t.Errorf("image_info: got %v", info)
	}
}

func TestHandleToolsCall_SelectErrors(t *testing.T) {
	s, _ := newServerWithBackend(t)
	imgPath := createTestImageFile(t, 3, 3, color.White)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing target", map[string]interface{}{"path": imgPath}, "target is required"},
		{"missing file", map[string]interface{}{"target": "/a.jpg", "path": "/nonexistent/image.png"}, "failed to decode image"},
		{"missing on server", map[string]interface{}{"target": "/static/uploads/absent.png"}, "failed to decode image"},
		{"not an image", map[string]interface{}{"target": "/a.jpg", "url": "data:image/png;base64,aGVsbG8="}, "failed to decode image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := toolError(t, s, "enhance_select", tt.args)
			if !strings.Contains(data, tt.want) {
				t.Errorf("error %q should contain %q", data, tt.want)
			}
		})
	}

	if status := toolResult(t, s, "enhance_status", nil); status["active"] != false {
		t.Error("failed selections should not start a session")
	}
}

func TestHandleToolsCall_ApplyErrors(t *testing.T) {
	s, _ := newServerWithBackend(t)

	if data := toolError(t, s, "enhance_apply", map[string]interface{}{"filter": "grayscale"}); data != "please select an image to enhance first" {
		t.Errorf("no session: got %q", data)
	}
	for _, tool := range []string{"enhance_reset", "enhance_save", "enhance_preview", "enhance_diff"} {
		if data := toolError(t, s, tool, nil); data != "please select an image to enhance first" {
			t.Errorf("%s without session: got %q", tool, data)
		}
	}

	imgPath := createTestImageFile(t, 2, 2, color.White)
	toolResult(t, s, "enhance_select", map[string]interface{}{"target": "/a.jpg", "path": imgPath})

	if data := toolError(t, s, "enhance_apply", map[string]interface{}{"filter": "sepia"}); !strings.Contains(data, "unknown filter") {
		t.Errorf("unknown filter: got %q", data)
	}
	if data := toolError(t, s, "enhance_sample_color", map[string]interface{}{"x": 5, "y": 0}); !strings.Contains(data, "outside image bounds") {
		t.Errorf("out of bounds: got %q", data)
	}
}

func TestHandleToolsCall_ImageUpload(t *testing.T) {
	s, fake := newServerWithBackend(t)
	imgPath := createTestImageFile(t, 4, 4, color.Black)

	res := toolResult(t, s, "image_upload", map[string]interface{}{"path": imgPath})
	if res["uploaded"] != true || res["filename"] != "handler-test.png" {
		t.Errorf("unexpected result: %v", res)
	}
	_, uploads, _ := fake.recorded()
	if len(uploads) != 1 || uploads[0] != "handler-test.png" {
		t.Errorf("uploads: got %v", uploads)
	}

	if data := toolError(t, s, "image_upload", map[string]interface{}{"path": "/nonexistent/a.png"}); !strings.Contains(data, "failed to open image") {
		t.Errorf("missing file: got %q", data)
	}
}

func TestHandleToolsCall_Batches(t *testing.T) {
	s, _ := newServerWithBackend(t)
	a := createTestImageFile(t, 2, 2, color.White)
	b := createTestImageFile(t, 2, 2, color.Black)

	created := toolResult(t, s, "batch_create", map[string]interface{}{"paths": []string{a, b}})
	if created["batch_id"] != "20240101_120000" || created["image_count"] != float64(2) {
		t.Errorf("batch_create: got %v", created)
	}

	list := toolResult(t, s, "batch_list", map[string]interface{}{"refresh": true})
	batches, _ := list["batches"].([]interface{})
	if len(batches) != 1 {
		t.Fatalf("batch_list: expected 1 batch, got %v", list["batches"])
	}
	if batches[0].(map[string]interface{})["status"] != "processing" {
		t.Errorf("batch status: got %v", batches[0])
	}

	status := toolResult(t, s, "batch_status", map[string]interface{}{"batch_id": "20240101_120000"})
	if status["done"] != true || status["elapsed_seconds"] != float64(30) {
		t.Errorf("batch_status: got %v", status)
	}

	if data := toolError(t, s, "batch_status", map[string]interface{}{"batch_id": "nope"}); data != "Batch not found" {
		t.Errorf("unknown batch: got %q", data)
	}
	if data := toolError(t, s, "batch_create", map[string]interface{}{"paths": []string{}}); data != "at least one path is required" {
		t.Errorf("empty batch: got %q", data)
	}
}

func TestHandleToolsCall_DeleteComponents(t *testing.T) {
	s, fake := newServerWithBackend(t)

	res := toolResult(t, s, "component_delete", map[string]interface{}{"path": "/static/components/a.png"})
	if res["deleted"] != "/static/components/a.png" {
		t.Errorf("component_delete: got %v", res)
	}
	if data := toolError(t, s, "component_delete", map[string]interface{}{}); data != "No path specified" {
		t.Errorf("empty path: got %q", data)
	}

	multi := toolResult(t, s, "components_delete", map[string]interface{}{"paths": []string{"/x.png", "/y.png"}})
	if multi["deleted_count"] != float64(2) || multi["total"] != float64(2) {
		t.Errorf("components_delete: got %v", multi)
	}

	_, _, deleted := fake.recorded()
	if len(deleted) != 1 || deleted[0] != "/static/components/a.png" {
		t.Errorf("deleted: got %v", deleted)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, "http://localhost:5000")

	if data := toolError(t, s, "nonexistent_tool", map[string]interface{}{}); data != "unknown tool: nonexistent_tool" {
		t.Errorf("got %q", data)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, "http://localhost:5000")

	resp := s.handleToolsCall(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected invalid params error, got %+v", resp.Error)
	}

	if data := toolError(t, s, "enhance_apply", "grayscale"); !strings.Contains(data, "invalid arguments") {
		t.Errorf("bad arguments: got %q", data)
	}
}

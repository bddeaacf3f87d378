// Package server implements the MCP (Model Context Protocol) server for image enhancement.
//
// This package provides a JSON-RPC 2.0 server that exposes the enhancement
// pipeline and the image server's batch and component endpoints through the
// MCP protocol.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Session tools are handled in the order they arrive. Tools that wait on the
// image server run in the background, so their responses may follow those of
// later requests and must be matched by id.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Enhancement Session:
//   - enhance_select: Decode an image and start a session for a target
//   - enhance_apply: Apply brightness, contrast, grayscale or sharpen
//   - enhance_reset: Restore the original pixels
//   - enhance_save: Save the working buffer over the target
//   - enhance_status: Describe the active session
//   - enhance_discard: End the session without saving
//
// Inspection:
//   - enhance_preview: Working buffer as PNG
//   - enhance_diff: Difference image against the original
//   - enhance_sample_color: Color at a pixel
//   - image_info: Dimensions and format without a session
//
// Image Server:
//   - image_upload: Upload for component detection
//   - batch_create, batch_list, batch_status: Batch processing
//   - component_delete, components_delete: Remove detected components
//
// # Sessions
//
// Only one enhancement session exists at a time. Selecting a new image
// replaces it, even while a save is outstanding; the late reply to that save
// is then ignored. A successful save ends the session and records the saved
// encoding as the target's displayed image, so a later enhance_select for
// the same target continues from it.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string. For a rejected save this ends with the
//     server's own message.
//
// # Usage
//
//	srv, err := server.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

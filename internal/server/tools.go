package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Enhancement Session
		{
			Name:        "enhance_select",
			Description: "Select an image for enhancement. Decodes it into an original and a working pixel buffer and replaces any active session. Loads from path, url, or, when neither is given, the target's currently displayed image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"target": map[string]interface{}{
						"type":        "string",
						"description": "Server-side identifier of the stored image the enhancement will replace (e.g. /static/uploads/photo.jpg)",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Optional absolute path to a local image file",
					},
					"url": map[string]interface{}{
						"type":        "string",
						"description": "Optional http(s) URL or data: URI of the image",
					},
				},
				"required": []string{"target"},
			},
		},
		{
			Name:        "enhance_apply",
			Description: "Apply a filter to the working buffer of the active session. Filters compound: each one transforms the result of the previous.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"filter": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"brightness", "contrast", "grayscale", "sharpen"},
						"description": "Filter to apply",
					},
				},
				"required": []string{"filter"},
			},
		},
		{
			Name:        "enhance_reset",
			Description: "Discard all applied filters, restoring the working buffer to the original pixels.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "enhance_save",
			Description: "Encode the working buffer as JPEG and save it over the target on the image server. On success the session ends; on failure it is kept so the save can be retried.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "enhance_status",
			Description: "Describe the active enhancement session: target, dimensions, applied filters, and whether a save is in flight.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "enhance_discard",
			Description: "End the active session without saving.",
			InputSchema: emptySchema(),
		},

		// Inspection
		{
			Name:        "enhance_preview",
			Description: "Return the working buffer as base64-encoded PNG so the current enhancement can be viewed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 0.5 for half size). Default 1.0",
						"default":     1.0,
					},
				},
			},
		},
		{
			Name:        "enhance_diff",
			Description: "Compare the working buffer to the original. Returns the number of changed pixels and a difference image where unchanged areas are black.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "enhance_sample_color",
			Description: "Get the color of the working buffer at a pixel coordinate.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate (0-based, from top)",
					},
					"original": map[string]interface{}{
						"type":        "boolean",
						"description": "Sample the original buffer instead of the working one. Default false",
						"default":     false,
					},
				},
				"required": []string{"x", "y"},
			},
		},
		{
			Name:        "image_info",
			Description: "Get the dimensions and format of an image without starting a session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"url": map[string]interface{}{
						"type":        "string",
						"description": "http(s) URL or data: URI, used when path is empty",
					},
				},
			},
		},

		// Image Server
		{
			Name:        "image_upload",
			Description: "Upload a local image to the image server for component detection.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "batch_create",
			Description: "Upload several local images as one batch for background processing on the image server. Starts batch status polling.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths of the images to upload",
					},
				},
				"required": []string{"paths"},
			},
		},
		{
			Name:        "batch_list",
			Description: "List all batches with their status and progress, from the most recent poll of the image server.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"refresh": map[string]interface{}{
						"type":        "boolean",
						"description": "Poll the server now instead of using the last snapshot. Default false",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "batch_status",
			Description: "Get the current status of one batch, including per-image results.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"batch_id": map[string]interface{}{
						"type":        "string",
						"description": "Batch identifier returned by batch_create",
					},
				},
				"required": []string{"batch_id"},
			},
		},
		{
			Name:        "component_delete",
			Description: "Delete one detected component image from the image server.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Server path of the component image",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "components_delete",
			Description: "Delete several detected component images. Reports how many were actually deleted.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Server paths of the component images",
					},
				},
				"required": []string{"paths"},
			},
		},
	}
}

func emptySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

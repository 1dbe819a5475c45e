package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the sheet photo",
}

var keyNameProperty = map[string]interface{}{
	"type":        "string",
	"description": "Name of a key loaded with omr_load_key (default: \"default\")",
	"default":     defaultKeyName,
}

// decisionProperties are shared by the evaluation tools.
func decisionProperties() map[string]interface{} {
	return map[string]interface{}{
		"variant": map[string]interface{}{
			"type":        "string",
			"description": "Key variant to grade against. Empty reads the printed SET label, then falls back to the first variant",
		},
		"fill_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Fill score above which a bubble counts as marked (default: 0.35)",
		},
		"ambiguity_margin": map[string]interface{}{
			"type":        "number",
			"description": "Two marks closer than this make the question ambiguous (default: 0.08)",
		},
		"wrong_penalty": map[string]interface{}{
			"type":        "number",
			"description": "Points subtracted from the net score per wrong answer (default: 0)",
			"default":     0,
		},
	}
}

func withProps(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Keys
		{
			Name:        "omr_load_key",
			Description: "Load answer keys from CSV or Excel (.xlsx) files. Each key has one column per subject (header row with subject names) and one row per question; cells hold a letter (A-D) or a 1-based number. Several files make a multi-variant key set.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Name to store the key set under (default: \"default\")",
						"default":     defaultKeyName,
					},
					"files": map[string]interface{}{
						"type":        "array",
						"description": "Key files (.csv or .xlsx), one per variant",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"variant": map[string]interface{}{"type": "string"},
								"path":    map[string]interface{}{"type": "string"},
							},
							"required": []string{"path"},
						},
					},
					"csv": map[string]interface{}{
						"type":        "string",
						"description": "Inline CSV for a single-variant key, used when files is empty",
					},
					"variant": map[string]interface{}{
						"type":        "string",
						"description": "Variant name for inline CSV (default: \"A\")",
					},
				},
			},
		},

		// Evaluation
		{
			Name:        "omr_evaluate",
			Description: "Evaluate one bubble-sheet photo: find the sheet, rectify it, locate the bubble grid, decide each answer and score it against the key. Returns per-subject scores and every question's decision.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(decisionProperties(), map[string]interface{}{
					"path": pathProperty,
					"image_base64": map[string]interface{}{
						"type":        "string",
						"description": "Base64-encoded photo, used when path is empty",
					},
					"key": keyNameProperty,
					"student": map[string]interface{}{
						"type":        "string",
						"description": "Student name for the stored result (default: sheet id or file name)",
					},
					"debug": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the detection overlay as base64 PNG plus corners and anchor matches",
						"default":     false,
					},
					"save": map[string]interface{}{
						"type":        "boolean",
						"description": "Store the result in the results database",
						"default":     false,
					},
				}),
			},
		},
		{
			Name:        "omr_evaluate_batch",
			Description: "Evaluate many sheet photos concurrently against one key set. Failures are reported per sheet; statistics cover the sheets that succeeded.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(decisionProperties(), map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"description": "Absolute paths to the sheet photos",
						"items":       map[string]interface{}{"type": "string"},
					},
					"directory": map[string]interface{}{
						"type":        "string",
						"description": "Evaluate every image file in this directory as well",
					},
					"key": keyNameProperty,
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Base student name; sheets become name_1, name_2, ... unless a sheet id is printed",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Concurrent evaluations (default: server setting)",
					},
					"save": map[string]interface{}{
						"type":        "boolean",
						"description": "Store every successful result in the results database",
						"default":     false,
					},
				}),
			},
		},

		// Inspection
		{
			Name:        "omr_rectify",
			Description: "Return the perspective-corrected sheet as base64 PNG, or a named region of it. Use this to check what the evaluator sees.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"region": map[string]interface{}{
						"type":        "string",
						"description": "Region of the rectified sheet to return",
						"enum":        []string{"full", "header", "top-left", "top-right", "body"},
						"default":     "full",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Scale factor for the output (default: 1.0)",
						"default":     1.0,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_grid_overlay",
			Description: "Locate the bubble grid on a sheet photo and draw it: rings coloured by fill score, resolved answers highlighted, anchors crossed. Needs no key.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"fill_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Fill score above which a bubble counts as marked (default: 0.35)",
					},
					"ambiguity_margin": map[string]interface{}{
						"type":        "number",
						"description": "Two marks closer than this make the question ambiguous (default: 0.08)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_render_sheet",
			Description: "Render a blank printable answer sheet for the configured grid, optionally with a SET label and a QR sheet id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"set_label": map[string]interface{}{
						"type":        "string",
						"description": "Variant letter printed as \"SET X\"",
					},
					"sheet_id": map[string]interface{}{
						"type":        "string",
						"description": "Identifier encoded in the QR code",
					},
					"title": map[string]interface{}{
						"type":        "string",
						"description": "Header title",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Write the PNG here instead of returning it inline",
					},
				},
			},
		},

		// Persistence
		{
			Name:        "omr_results",
			Description: "Query stored results. Requires a configured database.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"description": "What to do",
						"enum":        []string{"list", "count", "delete_all"},
						"default":     "list",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Most recent rows to list (default: 50)",
						"default":     50,
					},
				},
			},
		},
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

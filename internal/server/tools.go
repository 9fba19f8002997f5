package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

// withProps merges property groups into one properties map.
func withProps(groups ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, g := range groups {
		for k, v := range g {
			out[k] = v
		}
	}
	return out
}

func pathProps() map[string]interface{} {
	return map[string]interface{}{
		"path":   prop("string", "Absolute path to a tile image (PNG, JPEG or WebP)"),
		"reload": prop("boolean", "Re-read the file even if a cached copy exists (default false)"),
	}
}

func regionProps() map[string]interface{} {
	return map[string]interface{}{
		"min_lat": prop("number", "Southern edge in degrees"),
		"max_lat": prop("number", "Northern edge in degrees"),
		"min_lon": prop("number", "Western edge in degrees"),
		"max_lon": prop("number", "Eastern edge in degrees"),
	}
}

func zoomProps() map[string]interface{} {
	return map[string]interface{}{
		"zoom": prop("integer", "Tile zoom level 0-24. Default 19"),
	}
}

func detectProps() map[string]interface{} {
	return map[string]interface{}{
		"canny_low":  prop("integer", "Lower Canny hysteresis threshold. Default 30"),
		"canny_high": prop("integer", "Upper Canny hysteresis threshold, must exceed canny_low. Default 80"),
		"min_area":   prop("number", "Smallest polygon area kept, in square pixels. Default 40"),
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Tile Geometry
		{
			Name:        "tile_from_point",
			Description: "Find the slippy-map tile containing a point and return its index and geographic bounds.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(map[string]interface{}{
					"lat": prop("number", "Latitude in degrees"),
					"lon": prop("number", "Longitude in degrees"),
				}, zoomProps()),
				"required": []string{"lat", "lon"},
			},
		},
		{
			Name:        "tile_bounds",
			Description: "Return the geographic bounds of a tile given its zoom, x and y.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"z": prop("integer", "Zoom level"),
					"x": prop("integer", "Tile column"),
					"y": prop("integer", "Tile row"),
				},
				"required": []string{"z", "x", "y"},
			},
		},
		{
			Name:        "tile_grid",
			Description: "List the tiles covering a bounding box, in scan order (north to south, west to east). Give either the four edges or a center point with radius_m.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(regionProps(), zoomProps(), map[string]interface{}{
					"lat":      prop("number", "Center latitude, used with radius_m"),
					"lon":      prop("number", "Center longitude, used with radius_m"),
					"radius_m": prop("number", "Half the side of a square region around lat/lon, in meters"),
				}),
			},
		},

		// Image Inspection
		{
			Name:        "image_info",
			Description: "Load a tile image and return its dimensions, format and file size.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": pathProps(),
				"required":   []string{"path"},
			},
		},
		{
			Name:        "pixel_hsv",
			Description: "Sample a pixel and report its RGB and 8-bit HSV values and whether the vegetation range includes it. Useful for tuning the vegetation mask.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(pathProps(), map[string]interface{}{
					"x": prop("integer", "X coordinate (0-based)"),
					"y": prop("integer", "Y coordinate (0-based)"),
				}),
				"required": []string{"path", "x", "y"},
			},
		},

		// Boundary Detection
		{
			Name:        "detect_image",
			Description: "Detect field boundary contours in a local tile image. With geographic bounds the result is a GeoJSON FeatureCollection; without them, pixel-space contours.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": withProps(pathProps(), detectProps(), regionProps()),
				"required":   []string{"path"},
			},
		},
		{
			Name:        "boundary_mask",
			Description: "Render an intermediate detection mask as base64-encoded PNG: edges, vegetation, combined, or closed (the mask contours are traced from).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(pathProps(), detectProps(), map[string]interface{}{
					"stage": map[string]interface{}{
						"type":        "string",
						"description": "Mask to render. Default closed",
						"enum":        []string{"edges", "vegetation", "combined", "closed"},
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "detect_region",
			Description: "Download imagery for a bounding box and return every detected parcel boundary as one GeoJSON FeatureCollection. Omitted edges use the configured default region.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": withProps(regionProps(), zoomProps(), detectProps()),
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

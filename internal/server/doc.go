// Package server implements the MCP (Model Context Protocol) server for
// parcel boundary tools.
//
// This package provides a JSON-RPC 2.0 server that exposes tile geometry,
// detector inspection and region detection through the MCP protocol, so an
// assistant can locate tiles, tune detector parameters on a sample tile and
// then trace a whole region.
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
// Tile Geometry:
//   - tile_from_point: Tile containing a latitude/longitude
//   - tile_bounds: Geographic bounds of a z/x/y tile
//   - tile_grid: Tiles covering a bounding box or a point and radius
//
// Image Inspection:
//   - image_info: Dimensions and format of a local tile
//   - pixel_hsv: Color of one pixel and its vegetation classification
//
// Boundary Detection:
//   - detect_image: Contours of a local tile, in pixels or as GeoJSON
//   - boundary_mask: An intermediate detector mask as base64 PNG
//   - detect_region: Full download-and-detect run over a bounding box
//
// Detection tools accept canny_low, canny_high and min_area; values left out
// use the server's configured defaults. detect_region also falls back to the
// configured region for any edge that is not given.
//
// # Image Caching
//
// Local images are cached by path and reused across tool calls. Pass
// "reload": true to re-read a file that changed on disk. The cache holds at
// most 64 images and is emptied when it fills.
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC error responses:
//   - -32602: invalid arguments (bad region, zoom, tile or detector params)
//   - -32000: tool execution failure (unreadable image, canceled run)
//
// # Usage
//
//	srv := server.New(server.Config{Pipeline: p, Region: defaultRegion})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

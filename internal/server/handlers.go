package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/imaging"
	"github.com/ironsheep/parcel-tracer/internal/pipeline"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// maxListedTiles bounds how many tiles tile_grid lists individually.
const maxListedTiles = 2000

// maxCachedImages bounds the image cache; it is emptied when full.
const maxCachedImages = 64

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "tile_grid", "detect_region").
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
// Invalid arguments, including invalid regions and detection parameters,
// return code -32602. Other failures return -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var cfgErr *pipeline.ConfigError
		if errors.As(err, &cfgErr) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

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
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Tile Geometry
	case "tile_from_point":
		return s.handleTileFromPoint(args)
	case "tile_bounds":
		return s.handleTileBounds(args)
	case "tile_grid":
		return s.handleTileGrid(args)

	// Image Inspection
	case "image_info":
		return s.handleImageInfo(args)
	case "pixel_hsv":
		return s.handlePixelHSV(args)

	// Boundary Detection
	case "detect_image":
		return s.handleDetectImage(args)
	case "boundary_mask":
		return s.handleBoundaryMask(args)
	case "detect_region":
		return s.handleDetectRegion(ctx, args)

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
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Shared argument groups ===

// regionArgs holds optional bounding box edges. Nil edges take the server's
// default region.
type regionArgs struct {
	MinLat *float64 `json:"min_lat"`
	MaxLat *float64 `json:"max_lat"`
	MinLon *float64 `json:"min_lon"`
	MaxLon *float64 `json:"max_lon"`
}

func (a regionArgs) provided() bool {
	return a.MinLat != nil || a.MaxLat != nil || a.MinLon != nil || a.MaxLon != nil
}

func (a regionArgs) apply(r tiles.Region) tiles.Region {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&r.MinLat, a.MinLat)
	set(&r.MaxLat, a.MaxLat)
	set(&r.MinLon, a.MinLon)
	set(&r.MaxLon, a.MaxLon)
	return r
}

type detectArgs struct {
	CannyLow  *int     `json:"canny_low"`
	CannyHigh *int     `json:"canny_high"`
	MinArea   *float64 `json:"min_area"`
}

// params overlays the arguments on the server defaults and validates.
func (a detectArgs) params(defaults detection.Params) (detection.Params, error) {
	p := defaults
	if a.CannyLow != nil {
		p.CannyLow = *a.CannyLow
	}
	if a.CannyHigh != nil {
		p.CannyHigh = *a.CannyHigh
	}
	if a.MinArea != nil {
		p.MinArea = *a.MinArea
	}
	if err := p.Validate(); err != nil {
		return p, &pipeline.ConfigError{Field: "params", Err: err}
	}
	return p, nil
}

func (s *Server) zoomOrDefault(z *int) (int, error) {
	zoom := s.zoom
	if z != nil {
		zoom = *z
	}
	if err := tiles.ValidateZoom(zoom); err != nil {
		return 0, &pipeline.ConfigError{Field: "zoom", Err: err}
	}
	return zoom, nil
}

// === Tile Geometry Handlers ===

// TileInfo describes one tile. Bounds is [min_lon, min_lat, max_lon, max_lat].
type TileInfo struct {
	tiles.Index
	Label   string     `json:"label"`
	Quadkey string     `json:"quadkey"`
	Bounds  [4]float64 `json:"bounds"`
}

func newTileInfo(idx tiles.Index) TileInfo {
	b := idx.Bounds()
	return TileInfo{
		Index:   idx,
		Label:   idx.String(),
		Quadkey: idx.Quadkey(),
		Bounds:  [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
	}
}

type tileFromPointArgs struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom *int    `json:"zoom"`
}

func (s *Server) handleTileFromPoint(args json.RawMessage) (interface{}, error) {
	var a tileFromPointArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	zoom, err := s.zoomOrDefault(a.Zoom)
	if err != nil {
		return nil, err
	}
	if a.Lat < -tiles.MaxLatitude || a.Lat > tiles.MaxLatitude || a.Lon < -180 || a.Lon > 180 {
		return nil, &pipeline.ConfigError{
			Field: "point",
			Err:   fmt.Errorf("(%g, %g) is outside the Web-Mercator range", a.Lat, a.Lon),
		}
	}
	return newTileInfo(tiles.FromGeo(a.Lat, a.Lon, zoom)), nil
}

type tileBoundsArgs struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Server) handleTileBounds(args json.RawMessage) (interface{}, error) {
	var a tileBoundsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	idx := tiles.Index{Zoom: a.Z, X: a.X, Y: a.Y}
	if !idx.Valid() {
		return nil, &pipeline.ConfigError{
			Field: "tile",
			Err:   fmt.Errorf("%d/%d/%d is outside the world grid", a.Z, a.X, a.Y),
		}
	}
	return newTileInfo(idx), nil
}

type tileGridArgs struct {
	regionArgs
	Zoom    *int     `json:"zoom"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	RadiusM float64  `json:"radius_m"`
}

// TileGridResult summarises the tiles covering a region. Tiles is omitted
// for grids larger than the listing limit.
type TileGridResult struct {
	Region  tiles.Region `json:"region"`
	Zoom    int          `json:"zoom"`
	Columns int          `json:"columns"`
	Rows    int          `json:"rows"`
	Count   int          `json:"count"`
	First   TileInfo     `json:"first"`
	Last    TileInfo     `json:"last"`
	Tiles   []TileInfo   `json:"tiles,omitempty"`
}

func (s *Server) handleTileGrid(args json.RawMessage) (interface{}, error) {
	var a tileGridArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	zoom, err := s.zoomOrDefault(a.Zoom)
	if err != nil {
		return nil, err
	}

	region := a.regionArgs.apply(s.region)
	if a.Lat != nil && a.Lon != nil {
		if a.RadiusM <= 0 {
			return nil, &pipeline.ConfigError{Field: "radius_m", Err: errors.New("must be positive")}
		}
		region = tiles.RegionAround(*a.Lat, *a.Lon, a.RadiusM)
	}
	if err := region.Validate(); err != nil {
		return nil, &pipeline.ConfigError{Field: "region", Err: err}
	}

	grid := tiles.NewGrid(region, zoom)
	result := TileGridResult{
		Region:  region,
		Zoom:    zoom,
		Columns: grid.Columns(),
		Rows:    grid.Rows(),
		Count:   grid.Len(),
		First:   newTileInfo(tiles.Index{Zoom: zoom, X: grid.MinX, Y: grid.MinY}),
		Last:    newTileInfo(tiles.Index{Zoom: zoom, X: grid.MaxX, Y: grid.MaxY}),
	}
	if grid.Len() <= maxListedTiles {
		for _, idx := range grid.Tiles() {
			result.Tiles = append(result.Tiles, newTileInfo(idx))
		}
	}
	return result, nil
}

// === Image Inspection Handlers ===

// imageRef names a local image. Reload drops any cached copy first, for
// files that changed since they were last read.
type imageRef struct {
	Path   string `json:"path"`
	Reload bool   `json:"reload"`
}

// prepareCache applies ref's reload flag and keeps the cache bounded.
func (s *Server) prepareCache(ref imageRef) {
	if ref.Reload {
		s.cache.Evict(ref.Path)
	}
	if s.cache.Len() >= maxCachedImages {
		log.WithField("images", s.cache.Len()).Debug("Image cache full, clearing")
		s.cache.Clear()
	}
}

func (s *Server) loadImage(ref imageRef) (*image.NRGBA, error) {
	s.prepareCache(ref)
	return s.cache.Load(ref.Path)
}

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a imageRef
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	s.prepareCache(a)
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type pixelHSVArgs struct {
	imageRef
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Server) handlePixelHSV(args json.RawMessage) (interface{}, error) {
	var a pixelHSVArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.imageRef)
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(img, a.X, a.Y, s.params.Vegetation)
}

// === Boundary Detection Handlers ===

type detectImageArgs struct {
	imageRef
	detectArgs
	regionArgs
}

// ImageContours is the pixel-space result of detect_image.
type ImageContours struct {
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Count    int                 `json:"count"`
	Contours []detection.Contour `json:"contours"`
}

func (s *Server) handleDetectImage(args json.RawMessage) (interface{}, error) {
	var a detectImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	params, err := a.detectArgs.params(s.params)
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.imageRef)
	if err != nil {
		return nil, err
	}
	contours := detection.Detect(img, params)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	if !a.regionArgs.provided() {
		return ImageContours{Width: w, Height: h, Count: len(contours), Contours: contours}, nil
	}

	if a.MinLat == nil || a.MaxLat == nil || a.MinLon == nil || a.MaxLon == nil {
		return nil, &pipeline.ConfigError{Field: "bounds", Err: errors.New("all four edges are required")}
	}
	region := a.regionArgs.apply(tiles.Region{})
	if err := region.Validate(); err != nil {
		return nil, &pipeline.ConfigError{Field: "bounds", Err: err}
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = pipeline.BuildFeatures("image", contours, region.Bound(), w, h, 0)
	return fc, nil
}

type boundaryMaskArgs struct {
	imageRef
	Stage string `json:"stage"`
	detectArgs
}

func (s *Server) handleBoundaryMask(args json.RawMessage) (interface{}, error) {
	var a boundaryMaskArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	params, err := a.detectArgs.params(s.params)
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.imageRef)
	if err != nil {
		return nil, err
	}

	stages := detection.Stages(img, params)
	var mask *image.Gray
	switch a.Stage {
	case "", "closed":
		mask = stages.Closed
	case "edges":
		mask = stages.Edges
	case "vegetation":
		mask = stages.Vegetation
	case "combined":
		mask = stages.Combined
	default:
		return nil, &pipeline.ConfigError{
			Field: "stage",
			Err:   fmt.Errorf("unknown stage %q (use edges, vegetation, combined or closed)", a.Stage),
		}
	}
	return imaging.EncodeMask(mask)
}

type detectRegionArgs struct {
	regionArgs
	detectArgs
	Zoom *int `json:"zoom"`
}

// RegionResult is the result of detect_region.
type RegionResult struct {
	Count int                        `json:"count"`
	Stats pipeline.Stats             `json:"stats"`
	Data  *geojson.FeatureCollection `json:"data"`
}

func (s *Server) handleDetectRegion(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.pipeline == nil {
		return nil, errors.New("region detection is not configured")
	}

	var a detectRegionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	params, err := a.detectArgs.params(s.params)
	if err != nil {
		return nil, err
	}
	zoom := s.zoom
	if a.Zoom != nil {
		zoom = *a.Zoom
	}

	fc, stats, err := s.pipeline.RunWithStats(ctx, pipeline.Request{
		Region: a.regionArgs.apply(s.region),
		Zoom:   zoom,
		Params: params,
	})
	if err != nil {
		return nil, err
	}
	return RegionResult{Count: len(fc.Features), Stats: stats, Data: fc}, nil
}

package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Decode reads an encoded raster (PNG, JPEG, GIF, WebP, BMP or TIFF) and normalises it to
// NRGBA with its origin at (0, 0). Every detection stage works on this form.
//
// # Errors
//
//   - Returns error if the data is not a supported image format
//   - Returns error if the decoded image is empty
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return normalize(img)
}

// ToNRGBA returns img as NRGBA with its origin at (0, 0), copying only when
// img is not already in that form.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

func normalize(img image.Image) (*image.NRGBA, error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	return imaging.Clone(img), nil
}

// ImageCache provides thread-safe caching of decoded local rasters to avoid
// redundant disk reads when the same file is inspected repeatedly.
//
// Images are stored already normalised to NRGBA, keyed by the exact path
// string. Tiles fetched over the network never pass through the cache.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or Clear().
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	img, err := cache.Load("/path/to/tile.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cache.Evict("/path/to/tile.png")
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]*image.NRGBA
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*image.NRGBA),
	}
}

// Load retrieves an image from the cache or reads it from disk if not cached.
//
// Parameters:
//   - path: Absolute or relative file path to the image. Supported formats are
//     PNG, JPEG, GIF and WebP.
//
// Returns:
//   - *image.NRGBA: The decoded, normalised image.
//   - error: Non-nil if the file cannot be opened or decoded.
func (c *ImageCache) Load(path string) (*image.NRGBA, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*image.NRGBA)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// ImageInfo contains metadata about a local raster file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is derived from the file extension, e.g. "png", "jpeg" or
	// "webp". Unrecognised extensions report "unknown".
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// StandardTile reports whether the raster is 256x256, the size assumed for
	// slippy-map tiles.
	StandardTile bool `json:"standard_tile"`
}

// LoadImageInfo loads an image through the cache and describes it.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	if f, err := imaging.FormatFromFilename(path); err == nil {
		format = formatName(f)
	} else if strings.EqualFold(filepath.Ext(path), ".webp") {
		format = "webp"
	}

	b := img.Bounds()
	return &ImageInfo{
		Width:         b.Dx(),
		Height:        b.Dy(),
		Format:        format,
		FileSizeBytes: stat.Size(),
		StandardTile:  b.Dx() == 256 && b.Dy() == 256,
	}, nil
}

func formatName(f imaging.Format) string {
	switch f {
	case imaging.PNG:
		return "png"
	case imaging.JPEG:
		return "jpeg"
	case imaging.GIF:
		return "gif"
	case imaging.TIFF:
		return "tiff"
	case imaging.BMP:
		return "bmp"
	default:
		return "unknown"
	}
}

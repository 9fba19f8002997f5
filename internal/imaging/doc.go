// Package imaging implements the raster stages of boundary detection.
//
// Each stage takes an image and returns a new one, so stages can be chained,
// inspected, or tested in isolation:
//
//   - Decode normalises any supported raster to *image.NRGBA.
//   - Smooth converts to grayscale and applies a small Gaussian blur.
//   - Canny extracts thin edges from the smoothed image.
//   - HSVMask selects pixels whose color falls in an HSV range.
//   - Or, Dilate and Erode combine and close binary masks.
//
// # Masks
//
// Binary masks are *image.Gray values where 255 marks foreground and 0 marks
// background. Functions that produce masks always return images whose bounds
// start at (0, 0).
//
// # Coordinate System
//
// Pixel coordinates are 0-based with the origin at the top-left corner:
// X increases rightward and Y increases downward.
//
// # HSV Scale
//
// Color ranges are expressed on the 8-bit HSV scale common to raster toolkits:
// hue 0-179 (degrees halved), saturation and value 0-255.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. All stage functions are pure and can
// run concurrently on different images.
package imaging

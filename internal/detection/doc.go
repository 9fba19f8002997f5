// Package detection extracts candidate field-boundary polygons from raster
// tiles.
//
// The detector combines two cues: intensity edges, which outline roads,
// ditches and field margins, and a vegetation color mask, which fills in
// cultivated land. Both are merged, closed with a small morphological pass,
// and the outer boundary of every resulting blob is traced as a polygon.
//
// # Pipeline
//
//  1. Grayscale + Gaussian blur (radius Params.BlurRadius)
//  2. Canny edges (Params.CannyLow, Params.CannyHigh)
//  3. HSV vegetation mask (Params.Vegetation)
//  4. Logical OR of the two masks
//  5. Dilation (Params.DilateIterations) then erosion (Params.ErodeIterations)
//     with a 3x3 square
//  6. External contour tracing: only blobs that are not enclosed by another
//     blob are traced
//  7. Area filter: contours with Area < Params.MinArea are dropped
//
// # Coordinate System
//
// Contour points are pixel centres: X increases rightward from the left
// column, Y increases downward from the top row. Area is the shoelace area
// of the polygon through those centres, so a filled n x n square has area
// (n-1)².
//
// # Determinism
//
// Detect is a pure function of the pixels and Params. Contours are returned
// in discovery order: blobs are found by a row-major scan, and each contour
// starts at its blob's top-left pixel and runs clockwise on screen. Ties
// between equal candidates are always broken by that scan order.
package detection

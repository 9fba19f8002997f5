package detection

import (
	"image"
	"math"
)

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Bounds is the inclusive pixel extent of a contour.
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (inclusive)
	Y2 int `json:"y2"` // Bottom edge (inclusive)
}

// Contour is the traced outer boundary of one blob.
type Contour struct {
	// Points are the polygon's corners in tracing order. The ring is implicitly
	// closed; the first point is not repeated.
	Points []Point `json:"points"`

	// Area is the shoelace area of Points in square pixels.
	Area float64 `json:"area"`

	// Bounds is the bounding box of Points.
	Bounds Bounds `json:"bounds"`
}

// Clockwise-on-screen neighbour offsets, starting east. Y grows downward.
var directions = [8]Point{
	{1, 0},   // E
	{1, 1},   // SE
	{0, 1},   // S
	{-1, 1},  // SW
	{-1, 0},  // W
	{-1, -1}, // NW
	{0, -1},  // N
	{1, -1},  // NE
}

const west = 4

// binaryMask is a row-major view of a mask with a 0-based origin.
type binaryMask struct {
	width, height int
	pix           []bool
}

func newBinaryMask(m *image.Gray) *binaryMask {
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	bm := &binaryMask{width: w, height: h, pix: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bm.pix[y*w+x] = m.Pix[y*m.Stride+x] != 0
		}
	}
	return bm
}

// at reports whether (x, y) is foreground; pixels outside the mask are not.
func (m *binaryMask) at(x, y int) bool {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return false
	}
	return m.pix[y*m.width+x]
}

// FindExternalContours traces the outer boundary of every 8-connected blob
// in mask that is not enclosed by another blob. Blobs inside holes are
// skipped. Contours are returned in row-major order of each blob's top-left
// pixel, compressed to their corner points.
func FindExternalContours(mask *image.Gray) [][]Point {
	m := newBinaryMask(mask)
	outside := outerBackground(m)
	visited := make([]bool, m.width*m.height)

	contours := make([][]Point, 0)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			i := y*m.width + x
			if !m.pix[i] || visited[i] {
				continue
			}
			floodFill(m, visited, x, y)

			// The top-left pixel's west neighbour lies in the background
			// region surrounding the blob.
			if x == 0 || outside[i-1] {
				contours = append(contours, simplify(trace(m, Point{x, y})))
			}
		}
	}
	return contours
}

// outerBackground marks background pixels 4-connected to the image frame.
func outerBackground(m *binaryMask) []bool {
	outside := make([]bool, m.width*m.height)
	stack := make([]Point, 0, 2*(m.width+m.height))

	push := func(x, y int) {
		i := y*m.width + x
		if !m.pix[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, Point{x, y})
		}
	}
	for x := 0; x < m.width; x++ {
		push(x, 0)
		push(x, m.height-1)
	}
	for y := 0; y < m.height; y++ {
		push(0, y)
		push(m.width-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.X > 0 {
			push(p.X-1, p.Y)
		}
		if p.X < m.width-1 {
			push(p.X+1, p.Y)
		}
		if p.Y > 0 {
			push(p.X, p.Y-1)
		}
		if p.Y < m.height-1 {
			push(p.X, p.Y+1)
		}
	}
	return outside
}

// floodFill marks every foreground pixel 8-connected to the start point.
//
// Uses a stack rather than recursion so large blobs cannot overflow the
// goroutine stack.
func floodFill(m *binaryMask, visited []bool, startX, startY int) {
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !m.at(p.X, p.Y) || visited[p.Y*m.width+p.X] {
			continue
		}
		visited[p.Y*m.width+p.X] = true

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}

// trace follows a blob's outer boundary with Moore-neighbour tracing,
// starting from its top-left pixel and turning clockwise on screen.
//
// Tracing stops when it is back at start and about to repeat its first move.
// A blob of one pixel yields a single point.
func trace(m *binaryMask, start Point) []Point {
	contour := []Point{start}
	cur := start
	back := west
	var second Point
	limit := 4*m.width*m.height + 8

	for step := 0; step < limit; step++ {
		next, prevBG, found := Point{}, Point{}, false
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			cand := Point{cur.X + directions[d].X, cur.Y + directions[d].Y}
			if m.at(cand.X, cand.Y) {
				next = cand
				prev := directions[(back+k-1)%8]
				prevBG = Point{cur.X + prev.X, cur.Y + prev.Y}
				found = true
				break
			}
		}
		if !found {
			return contour
		}

		if step == 0 {
			second = next
		} else if cur == start && next == second {
			break
		}

		back = directionOf(Point{prevBG.X - next.X, prevBG.Y - next.Y})
		contour = append(contour, next)
		cur = next
	}

	// The walk ends on start; drop the duplicate.
	if len(contour) > 1 && contour[len(contour)-1] == start {
		contour = contour[:len(contour)-1]
	}
	return contour
}

func directionOf(offset Point) int {
	for d, o := range directions {
		if o == offset {
			return d
		}
	}
	return west
}

// simplify keeps only the points where the boundary changes direction.
func simplify(points []Point) []Point {
	n := len(points)
	if n < 3 {
		return points
	}

	out := make([]Point, 0, n)
	for i, p := range points {
		prev := points[(i-1+n)%n]
		next := points[(i+1)%n]
		in := Point{p.X - prev.X, p.Y - prev.Y}
		outDir := Point{next.X - p.X, next.Y - p.Y}
		if in != outDir {
			out = append(out, p)
		}
	}
	return out
}

// polygonArea returns the absolute shoelace area of a closed ring of points.
func polygonArea(points []Point) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}
	var sum float64
	for i, p := range points {
		q := points[(i+1)%n]
		sum += float64(p.X*q.Y - q.X*p.Y)
	}
	return math.Abs(sum) / 2
}

func boundsOf(points []Point) Bounds {
	b := Bounds{X1: points[0].X, Y1: points[0].Y, X2: points[0].X, Y2: points[0].Y}
	for _, p := range points[1:] {
		b.X1 = min(b.X1, p.X)
		b.Y1 = min(b.Y1, p.Y)
		b.X2 = max(b.X2, p.X)
		b.Y2 = max(b.Y2, p.Y)
	}
	return b
}

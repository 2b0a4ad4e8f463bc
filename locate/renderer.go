package locate

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	unassignedRayColor = color.RGBA{160, 160, 160, 255}
	stationColor       = color.RGBA{40, 40, 40, 255}
)

// TargetPalette returns the colors targets cycle through, in ID order.
func TargetPalette() []color.RGBA {
	return []color.RGBA{
		{0, 0, 255, 255},   // blue
		{220, 20, 60, 255}, // crimson
		{0, 150, 0, 255},   // green
		{255, 140, 0, 255}, // dark orange
		{128, 0, 128, 255}, // purple
		{0, 139, 139, 255}, // dark cyan
	}
}

// targetColors assigns palette colors to targets in solution order.
func targetColors(targets []LocatedTarget) map[string]color.RGBA {
	palette := TargetPalette()
	colors := make(map[string]color.RGBA, len(targets))
	for i, t := range targets {
		colors[t.ID] = palette[i%len(palette)]
	}
	return colors
}

// TopViewRenderer draws a solution seen from above: ray ground tracks,
// station dots and target markers with labels.
type TopViewRenderer struct {
	Solution    *Solution
	Cameras     []CameraConfig // drawn as labelled squares when set
	Size        int            // longest image side in pixels
	Padding     int            // pixels around the drawing
	TrackLength float64        // meters drawn for unassigned rays
}

// NewTopViewRenderer creates a renderer with default settings
func NewTopViewRenderer(sol *Solution) *TopViewRenderer {
	return &TopViewRenderer{
		Solution:    sol,
		Size:        800,
		Padding:     30,
		TrackLength: DefaultRayTrackLength,
	}
}

// projection maps ground points to pixels, north up.
type projection struct {
	bound   orb.Bound
	scale   float64
	padding int
	height  int
}

func (p projection) toImage(pt orb.Point) (int, int) {
	x := p.padding + int(math.Round((pt[0]-p.bound.Min[0])*p.scale))
	y := p.height - p.padding - int(math.Round((pt[1]-p.bound.Min[1])*p.scale))
	return x, y
}

func (r *TopViewRenderer) projection() (projection, int, int) {
	bound := SolutionBound(r.Solution, r.TrackLength)
	for _, cam := range r.Cameras {
		bound = bound.Extend(groundPoint(cam.Position.Vector()))
	}
	span := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	if span <= 0 {
		span = 1
	}
	drawable := r.Size - 2*r.Padding
	if drawable < 1 {
		drawable = 1
	}
	scale := float64(drawable) / span

	width := int(math.Ceil((bound.Max[0]-bound.Min[0])*scale)) + 2*r.Padding
	height := int(math.Ceil((bound.Max[1]-bound.Min[1])*scale)) + 2*r.Padding
	return projection{bound: bound, scale: scale, padding: r.Padding, height: height}, width, height
}

// Render draws the solution into a new image.
func (r *TopViewRenderer) Render() *image.RGBA {
	if r.Solution == nil {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	proj, width, height := r.projection()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	white := color.RGBA{255, 255, 255, 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, white)
		}
	}

	colors := targetColors(r.Solution.Targets)
	byID := make(map[string]*LocatedTarget, len(r.Solution.Targets))
	for i := range r.Solution.Targets {
		byID[r.Solution.Targets[i].ID] = &r.Solution.Targets[i]
	}
	owners := rayOwners(r.Solution.Targets)

	for i, ray := range r.Solution.Rays {
		owner := owners[i]
		c := unassignedRayColor
		if owner != "" {
			c = colors[owner]
		}
		x0, y0 := proj.toImage(groundPoint(ray.Origin))
		x1, y1 := proj.toImage(groundPoint(rayTrackEnd(ray, byID[owner], r.TrackLength)))
		drawLine(img, x0, y0, x1, y1, c)
		drawCircle(img, x0, y0, 3, stationColor)
	}

	for _, cam := range r.Cameras {
		x, y := proj.toImage(groundPoint(cam.Position.Vector()))
		drawSquare(img, x, y, 8, parseHexColor(cam.Color, stationColor))
		drawText(img, x+7, y-6, cam.ID, stationColor)
	}

	for _, t := range r.Solution.Targets {
		x, y := proj.toImage(groundPoint(t.Position))
		drawCircle(img, x, y, 6, colors[t.ID])
		drawText(img, x+9, y+4, fmt.Sprintf("%s z=%.0f", t.ID, t.Position.Z), color.RGBA{0, 0, 0, 255})
	}

	return img
}

// EncodePNG renders and writes PNG data to w.
func (r *TopViewRenderer) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG renders and writes the image to path.
func (r *TopViewRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return r.EncodePNG(f)
}

// drawLine draws a line with Bresenham's algorithm, clipped to the image.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	bounds := img.Bounds()
	err := dx + dy
	for {
		if image.Pt(x0, y0).In(bounds) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	bounds := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				if p := image.Pt(cx+dx, cy+dy); p.In(bounds) {
					img.SetRGBA(p.X, p.Y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	bounds := img.Bounds()
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			if p := image.Pt(cx+dx, cy+dy); p.In(bounds) {
				img.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA.
// Anything unparseable yields fallback.
func parseHexColor(hex string, fallback color.RGBA) color.RGBA {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return fallback
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{r, g, b, 255}
}

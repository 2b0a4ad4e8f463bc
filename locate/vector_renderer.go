package locate

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

var gridColor = color.RGBA{211, 211, 211, 255}

// VectorRenderer draws the top view as vector graphics. Canvas units are
// meters with north up.
type VectorRenderer struct {
	Solution    *Solution
	Cameras     []CameraConfig
	Padding     float64           // meters around the drawing
	Resolution  canvas.Resolution // PNG output resolution
	GridSpacing float64           // grid line spacing in meters; 0 disables
	TrackLength float64
	MarkerSize  float64 // target marker radius in meters; 0 scales with the view
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(sol *Solution, cameras []CameraConfig) *VectorRenderer {
	return &VectorRenderer{
		Solution:    sol,
		Cameras:     cameras,
		Padding:     100.0,
		Resolution:  canvas.DPMM(0.2), // one pixel per 5 m
		GridSpacing: 500.0,
		TrackLength: DefaultRayTrackLength,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) bound() (orb.Bound, error) {
	if r.Solution == nil {
		return orb.Bound{}, fmt.Errorf("no solution to render")
	}
	b := SolutionBound(r.Solution, r.TrackLength)
	for _, cam := range r.Cameras {
		b = b.Extend(groundPoint(cam.Position.Vector()))
	}
	return b, nil
}

// RenderToSVG writes the top view as SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	b, err := r.bound()
	if err != nil {
		return err
	}
	width := (b.Max[0] - b.Min[0]) + 2*r.Padding
	height := (b.Max[1] - b.Min[1]) + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, b, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the top view as PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	b, err := r.bound()
	if err != nil {
		return err
	}
	width := (b.Max[0] - b.Min[0]) + 2*r.Padding
	height := (b.Max[1] - b.Min[1]) + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, b, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, b orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0] - b.Min[0]) + r.Padding, (p[1] - b.Min[1]) + r.Padding
	}
	line := func(a, z orb.Point) *canvas.Path {
		p := &canvas.Path{}
		p.MoveTo(toCanvas(a))
		p.LineTo(toCanvas(z))
		return p
	}

	span := math.Max(width, height)
	marker := r.MarkerSize
	if marker <= 0 {
		marker = span / 120
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: gridColor}
		gridStyle.StrokeWidth = span / 1000
		gridStyle.Dashes = []float64{span / 200, span / 200}

		for x := math.Ceil(b.Min[0]/r.GridSpacing) * r.GridSpacing; x <= b.Max[0]; x += r.GridSpacing {
			renderer.RenderPath(line(orb.Point{x, b.Min[1]}, orb.Point{x, b.Max[1]}), gridStyle, canvas.Identity)
		}
		for y := math.Ceil(b.Min[1]/r.GridSpacing) * r.GridSpacing; y <= b.Max[1]; y += r.GridSpacing {
			renderer.RenderPath(line(orb.Point{b.Min[0], y}, orb.Point{b.Max[0], y}), gridStyle, canvas.Identity)
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
		rayStyle := canvas.DefaultStyle
		rayStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		rayStyle.StrokeWidth = span / 600
		if owner == "" {
			rayStyle.Stroke = canvas.Paint{Color: unassignedRayColor}
			rayStyle.Dashes = []float64{span / 150, span / 300}
		} else {
			rayStyle.Stroke = canvas.Paint{Color: colors[owner]}
		}
		end := rayTrackEnd(ray, byID[owner], r.TrackLength)
		renderer.RenderPath(line(groundPoint(ray.Origin), groundPoint(end)), rayStyle, canvas.Identity)
	}

	for _, cam := range r.Cameras {
		camStyle := canvas.DefaultStyle
		camStyle.Fill = canvas.Paint{Color: parseHexColor(cam.Color, stationColor)}
		camStyle.Stroke = canvas.Paint{Color: canvas.Black}
		camStyle.StrokeWidth = span / 1500

		x, y := toCanvas(groundPoint(cam.Position.Vector()))
		sq := canvas.Rectangle(marker*1.4, marker*1.4).Translate(x-marker*0.7, y-marker*0.7)
		renderer.RenderPath(sq, camStyle, canvas.Identity)
	}

	for _, t := range r.Solution.Targets {
		c := colors[t.ID]
		x, y := toCanvas(groundPoint(t.Position))

		outerStyle := canvas.DefaultStyle
		outerStyle.Fill = canvas.Paint{Color: c}
		outerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		outerStyle.StrokeWidth = span / 1000
		renderer.RenderPath(canvas.Circle(marker).Translate(x, y), outerStyle, canvas.Identity)

		// Residual ring: RMS scaled to the marker, faded.
		ringStyle := canvas.DefaultStyle
		ringStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		ringStyle.Stroke = canvas.Paint{Color: fade(c, 120)}
		ringStyle.StrokeWidth = span / 800
		ring := marker + t.RMSResidual
		renderer.RenderPath(canvas.Circle(ring).Translate(x, y), ringStyle, canvas.Identity)
	}
}

// fade returns c with alpha a, premultiplied.
func fade(c color.RGBA, a uint8) color.RGBA {
	return color.RGBA{
		R: uint8(uint32(c.R) * uint32(a) / 255),
		G: uint8(uint32(c.G) * uint32(a) / 255),
		B: uint8(uint32(c.B) * uint32(a) / 255),
		A: a,
	}
}

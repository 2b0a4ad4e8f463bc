package locate

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PositionsPlot draws every run's true targets (grey) and located targets
// (blue) on the ground plane, with a red segment joining each match.
func PositionsPlot(report *AccuracyReport) (*plot.Plot, error) {
	if report == nil {
		return nil, fmt.Errorf("no accuracy report")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Targets over %d runs: truth (grey), located (blue)", len(report.Runs))
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	var truths, located plotter.XYs
	for _, run := range report.Runs {
		for _, t := range run.Truths {
			truths = append(truths, plotter.XY{X: t.X, Y: t.Y})
		}
		for _, lt := range run.Targets {
			located = append(located, plotter.XY{X: lt.Position.X, Y: lt.Position.Y})
		}
		for _, m := range run.Matches {
			t := run.Truths[m.Truth]
			lt := run.Targets[m.Located].Position
			seg, err := plotter.NewLine(plotter.XYs{{X: t.X, Y: t.Y}, {X: lt.X, Y: lt.Y}})
			if err != nil {
				return nil, err
			}
			seg.Color = color.RGBA{R: 200, G: 30, B: 30, A: 200}
			seg.Width = vg.Points(0.8)
			p.Add(seg)
		}
	}

	if len(truths) > 0 {
		ts, err := plotter.NewScatter(truths)
		if err != nil {
			return nil, err
		}
		ts.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 200}
		ts.GlyphStyle.Radius = vg.Points(3)
		p.Add(ts)
		p.Legend.Add("truth", ts)
	}
	if len(located) > 0 {
		ls, err := plotter.NewScatter(located)
		if err != nil {
			return nil, err
		}
		ls.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
		ls.GlyphStyle.Radius = vg.Points(2)
		p.Add(ls)
		p.Legend.Add("located", ls)
	}

	return p, nil
}

// ErrorPlot draws the mean position error and the matched fraction per run.
func ErrorPlot(report *AccuracyReport) (*plot.Plot, error) {
	if report == nil {
		return nil, fmt.Errorf("no accuracy report")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mean error per run (overall %.2f m)", report.OverallMeanError)
	p.X.Label.Text = "run"
	p.Y.Label.Text = "error (m)"
	p.Add(plotter.NewGrid())

	errs := make(plotter.XYs, 0, len(report.Runs))
	for _, run := range report.Runs {
		if run.Matched == 0 {
			continue
		}
		errs = append(errs, plotter.XY{X: float64(run.Run), Y: run.MeanError})
	}
	if len(errs) == 0 {
		return p, nil
	}

	line, points, err := plotter.NewLinePoints(errs)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	line.Width = vg.Points(1)
	points.GlyphStyle.Radius = vg.Points(2)
	p.Add(line, points)
	p.Legend.Add("mean error", line, points)

	return p, nil
}

// SaveAccuracyCharts writes <prefix>_positions.png and <prefix>_errors.png.
func SaveAccuracyCharts(report *AccuracyReport, prefix string) ([]string, error) {
	pos, err := PositionsPlot(report)
	if err != nil {
		return nil, fmt.Errorf("building positions chart: %w", err)
	}
	errp, err := ErrorPlot(report)
	if err != nil {
		return nil, fmt.Errorf("building error chart: %w", err)
	}

	paths := []string{prefix + "_positions.png", prefix + "_errors.png"}
	for i, p := range []*plot.Plot{pos, errp} {
		if err := p.Save(8*vg.Inch, 6*vg.Inch, filepath.Clean(paths[i])); err != nil {
			return nil, fmt.Errorf("saving %s: %w", paths[i], err)
		}
	}
	return paths, nil
}

// WritePositionsChart renders the positions chart in format ("png" or "svg").
func WritePositionsChart(w io.Writer, report *AccuracyReport, format string) error {
	p, err := PositionsPlot(report)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("creating %s writer: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

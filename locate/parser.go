package locate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InputFile is the on-disk input of a solve: raw measurements, camera
// bearings, or both.
type InputFile struct {
	Cameras      []CameraConfig `json:"cameras,omitempty"`
	Measurements []Measurement  `json:"measurements,omitempty"`
	Observations []Observation  `json:"observations,omitempty"`
}

// ParseInputFile reads a .json or .csv input file.
func ParseInputFile(path string) (*InputFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		ms, err := ParseMeasurementsCSV(f)
		if err != nil {
			return nil, err
		}
		return &InputFile{Measurements: ms}, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return ParseInputJSON(data)
}

// ParseInputJSON parses an InputFile document.
func ParseInputJSON(data []byte) (*InputFile, error) {
	var in InputFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &in, nil
}

// Rays converts the file's measurements and observations to rays, in that
// order. Observations are resolved against the file's cameras first, then
// against extra.
func (in *InputFile) Rays(extra []CameraConfig) ([]Ray, error) {
	rays, err := MeasurementsToRays(in.Measurements)
	if err != nil {
		return nil, err
	}
	if len(in.Observations) == 0 {
		return rays, nil
	}

	cameras := append(append([]CameraConfig{}, extra...), in.Cameras...)
	obsRays, err := ResolveObservations(cameras, in.Observations)
	if err != nil {
		return nil, err
	}
	return append(rays, obsRays...), nil
}

var csvColumns = []string{"x", "y", "z", "dx", "dy", "dz"}

// ParseMeasurementsCSV reads measurements with the header x,y,z,dx,dy,dz.
// Columns may come in any order; extra columns are ignored.
func ParseMeasurementsCSV(r io.Reader) ([]Measurement, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make([]int, len(csvColumns))
	for i, name := range csvColumns {
		idx, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("CSV header missing column %q", name)
		}
		cols[i] = idx
	}

	var ms []Measurement
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}

		var v [6]float64
		for i, c := range cols {
			if c >= len(rec) {
				return nil, fmt.Errorf("CSV line %d: missing column %q", line, csvColumns[i])
			}
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("CSV line %d column %q: %w", line, csvColumns[i], err)
			}
			if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
				return nil, fmt.Errorf("CSV line %d column %q: %w", line, csvColumns[i], ErrNonFiniteRay)
			}
		}
		ms = append(ms, Measurement{X: v[0], Y: v[1], Z: v[2], DirectionX: v[3], DirectionY: v[4], DirectionZ: v[5]})
	}
	return ms, nil
}

// WriteMeasurementsCSV writes measurements in the format ParseMeasurementsCSV reads.
func WriteMeasurementsCSV(w io.Writer, ms []Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, m := range ms {
		rec := []string{
			formatFloat(m.X), formatFloat(m.Y), formatFloat(m.Z),
			formatFloat(m.DirectionX), formatFloat(m.DirectionY), formatFloat(m.DirectionZ),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTargetsCSV writes one row per target.
func WriteTargetsCSV(w io.Writer, targets []LocatedTarget) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "x", "y", "z", "rays", "meanResidual", "rmsResidual"}); err != nil {
		return err
	}
	for _, t := range targets {
		rec := []string{
			t.ID,
			formatFloat(t.Position.X), formatFloat(t.Position.Y), formatFloat(t.Position.Z),
			strconv.Itoa(t.SupportingRayCount),
			formatFloat(t.MeanResidual), formatFloat(t.RMSResidual),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

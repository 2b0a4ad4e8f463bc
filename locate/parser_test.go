package locate

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
)

func TestParseMeasurementsCSV(t *testing.T) {
	input := "dz, dy, dx, z, y, x, note\n1,0,0,10,20,30,first\n0, 1, 0, -1.5, 2e3, 0,second\n"

	ms, err := ParseMeasurementsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseMeasurementsCSV: %v", err)
	}
	want := []Measurement{
		{X: 30, Y: 20, Z: 10, DirectionX: 0, DirectionY: 0, DirectionZ: 1},
		{X: 0, Y: 2000, Z: -1.5, DirectionX: 0, DirectionY: 1, DirectionZ: 0},
	}
	if diff := cmp.Diff(want, ms); diff != "" {
		t.Errorf("measurements (-want +got):\n%s", diff)
	}
}

func TestParseMeasurementsCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "reading CSV header"},
		{"missing column", "x,y,z,dx,dy\n1,2,3,4,5\n", `missing column "dz"`},
		{"bad number", "x,y,z,dx,dy,dz\n1,2,three,0,0,1\n", `line 2 column "z"`},
		{"short row", "x,y,z,dx,dy,dz\n1,2,3\n", "line 2"},
		{"NaN cell", "x,y,z,dx,dy,dz\n1,2,3,0,0,1\n1,NaN,3,0,0,1\n", `line 3 column "y"`},
		{"infinite cell", "x,y,z,dx,dy,dz\n1,2,3,Inf,0,1\n", `line 2 column "dx"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMeasurementsCSV(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteMeasurementsCSV_ReadBack(t *testing.T) {
	ms := []Measurement{
		{X: 1.25, Y: -3, Z: 40, DirectionX: 0.6, DirectionY: 0, DirectionZ: 0.8},
		{X: 0, Y: 1e6, Z: 0.001, DirectionX: 0, DirectionY: -1, DirectionZ: 0},
	}
	var buf bytes.Buffer
	if err := WriteMeasurementsCSV(&buf, ms); err != nil {
		t.Fatalf("WriteMeasurementsCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "x,y,z,dx,dy,dz\n") {
		t.Errorf("unexpected header in %q", buf.String())
	}

	got, err := ParseMeasurementsCSV(&buf)
	if err != nil {
		t.Fatalf("ParseMeasurementsCSV: %v", err)
	}
	if diff := cmp.Diff(ms, got); diff != "" {
		t.Errorf("read back (-want +got):\n%s", diff)
	}
}

func TestWriteTargetsCSV(t *testing.T) {
	targets := []LocatedTarget{{
		ID:                 "Target_1",
		Position:           r3.Vector{X: 1.5, Y: -2, Z: 100},
		SupportingRayCount: 4,
		MeanResidual:       0.25,
		RMSResidual:        0.5,
	}}
	var buf bytes.Buffer
	if err := WriteTargetsCSV(&buf, targets); err != nil {
		t.Fatalf("WriteTargetsCSV: %v", err)
	}
	want := "id,x,y,z,rays,meanResidual,rmsResidual\nTarget_1,1.5,-2,100,4,0.25,0.5\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestParseInputFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "input.json")
	doc := `{
		"cameras": [{"id": "cam-a", "position": {"x": 0, "y": 0, "z": 10}}],
		"measurements": [{"x": 1, "y": 2, "z": 3, "directionX": 0, "directionY": 0, "directionZ": 2}],
		"observations": [
			{"cameraId": "cam-a", "azimuth": 90, "elevation": 0},
			{"cameraId": "cam-b", "azimuth": 0, "elevation": 0}
		]
	}`
	if err := os.WriteFile(jsonPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	in, err := ParseInputFile(jsonPath)
	if err != nil {
		t.Fatalf("ParseInputFile(json): %v", err)
	}
	if len(in.Measurements) != 1 || len(in.Observations) != 2 || len(in.Cameras) != 1 {
		t.Fatalf("unexpected counts: %+v", in)
	}

	if _, err := in.Rays(nil); !errors.Is(err, ErrUnknownCamera) {
		t.Errorf("Rays without cam-b: error = %v, want ErrUnknownCamera", err)
	}

	rays, err := in.Rays([]CameraConfig{{ID: "cam-b", Position: Position{X: 5}}})
	if err != nil {
		t.Fatalf("Rays: %v", err)
	}
	if len(rays) != 3 {
		t.Fatalf("got %d rays, want 3", len(rays))
	}
	if !vecNear(rays[0].Direction, r3.Vector{Z: 1}, 1e-12) {
		t.Errorf("measurement direction not normalized: %v", rays[0].Direction)
	}
	if !vecNear(rays[1].Direction, r3.Vector{X: 1}, 1e-12) {
		t.Errorf("cam-a bearing = %v, want east", rays[1].Direction)
	}
	if rays[2].Origin != (r3.Vector{X: 5}) {
		t.Errorf("cam-b origin = %v", rays[2].Origin)
	}

	csvPath := filepath.Join(dir, "input.CSV")
	if err := os.WriteFile(csvPath, []byte("x,y,z,dx,dy,dz\n0,0,0,1,0,0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	in, err = ParseInputFile(csvPath)
	if err != nil {
		t.Fatalf("ParseInputFile(csv): %v", err)
	}
	if len(in.Measurements) != 1 {
		t.Errorf("got %d measurements, want 1", len(in.Measurements))
	}

	if _, err := ParseInputFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

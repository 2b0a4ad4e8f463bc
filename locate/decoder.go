package locate

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeObservations decodes an observation payload as received over MQTT or HTTP:
//   - a single JSON observation object
//   - a JSON array of observations
//   - a JSON object {"observations": [...]}
//   - any of the above, zlib-compressed
//
// Observations without a cameraId get defaultCamera (typically taken from the
// topic); it is an error when both are empty.
func DecodeObservations(data []byte, defaultCamera string) ([]Observation, error) {
	obs, err := decodeObservationJSON(data)
	if err != nil {
		return nil, err
	}
	for i := range obs {
		if obs[i].CameraID == "" {
			if defaultCamera == "" {
				return nil, fmt.Errorf("observation %d has no cameraId", i)
			}
			obs[i].CameraID = defaultCamera
		}
	}
	return obs, nil
}

func decodeObservationJSON(data []byte) ([]Observation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	if data[0] != '{' && data[0] != '[' {
		inflated, err := inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed JSON")
		}
		data = bytes.TrimSpace(inflated)
		if len(data) == 0 {
			return nil, fmt.Errorf("decoded JSON payload is empty")
		}
	}

	if data[0] == '[' {
		var obs []Observation
		if err := json.Unmarshal(data, &obs); err != nil {
			return nil, fmt.Errorf("parsing observation array: %w", err)
		}
		return obs, nil
	}

	var batch struct {
		Observations []Observation `json:"observations"`
		Observation
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing observation JSON: %w", err)
	}
	if batch.Observations != nil {
		return batch.Observations, nil
	}
	return []Observation{batch.Observation}, nil
}

// inflateZlib decompresses zlib data
func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

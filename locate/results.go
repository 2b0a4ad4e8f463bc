package locate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSolutionCachePath is where the service keeps its last solution.
const DefaultSolutionCachePath = ".skylocate-solution.json"

// LoadSolution loads a solution saved by SaveSolution. A missing file is not
// an error and yields nil.
func LoadSolution(path string) (*Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading solution file: %w", err)
	}

	var sol Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, fmt.Errorf("parsing solution file: %w", err)
	}
	return &sol, nil
}

// SaveSolution writes sol as indented JSON, creating the directory if needed.
func SaveSolution(path string, sol *Solution) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating solution directory: %w", err)
	}

	data, err := json.MarshalIndent(sol, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling solution: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing solution file: %w", err)
	}
	return nil
}

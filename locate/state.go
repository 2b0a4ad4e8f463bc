package locate

import (
	"log"
	"sync"
	"time"
)

// bufferedObservation is an observation with the time it entered the buffer.
type bufferedObservation struct {
	Observation
	at time.Time
}

// StateTracker buffers incoming observations and holds the latest solution
// for the service endpoints.
type StateTracker struct {
	mu           sync.RWMutex
	window       time.Duration
	observations []bufferedObservation
	solution     *Solution
	colors       map[string]string // camera ID -> hex color
	cachePath    string            // path to the solution cache file; empty disables persistence
	now          func() time.Time
}

// NewStateTracker creates a tracker keeping observations for window.
func NewStateTracker(window time.Duration) *StateTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &StateTracker{
		window: window,
		colors: make(map[string]string),
		now:    time.Now,
	}
}

// NewStateTrackerWithCache creates a tracker that persists every solution to
// cachePath. If the file exists, the cached solution is loaded on creation.
func NewStateTrackerWithCache(window time.Duration, cachePath string) *StateTracker {
	st := NewStateTracker(window)
	st.cachePath = cachePath
	if cachePath != "" {
		sol, err := LoadSolution(cachePath)
		if err != nil {
			log.Printf("warning: ignoring solution cache %s: %v", cachePath, err)
		} else {
			st.solution = sol
		}
	}
	return st
}

// SetColor sets the render color for a camera
func (st *StateTracker) SetColor(cameraID, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[cameraID] = hexColor
}

// Colors returns a copy of the camera color table
func (st *StateTracker) Colors() map[string]string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]string, len(st.colors))
	for k, v := range st.colors {
		result[k] = v
	}
	return result
}

// Window returns how long observations are kept.
func (st *StateTracker) Window() time.Duration {
	return st.window
}

// AddObservations appends observations to the buffer. An observation's own
// Timestamp (unix millis) is used when set, otherwise the arrival time.
func (st *StateTracker) AddObservations(obs []Observation) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	for _, o := range obs {
		at := now
		if o.Timestamp > 0 {
			at = time.UnixMilli(o.Timestamp)
		}
		st.observations = append(st.observations, bufferedObservation{Observation: o, at: at})
	}
}

// Observations returns the buffered observations younger than the window,
// dropping older ones from the buffer.
func (st *StateTracker) Observations() []Observation {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := st.now().Add(-st.window)
	kept := st.observations[:0]
	for _, o := range st.observations {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	st.observations = kept

	result := make([]Observation, len(kept))
	for i, o := range kept {
		result[i] = o.Observation
	}
	return result
}

// ObservationCount returns the number of buffered observations, stale ones included.
func (st *StateTracker) ObservationCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.observations)
}

// SetSolution stores sol as the latest solution and persists it when a cache
// path is configured.
func (st *StateTracker) SetSolution(sol *Solution) {
	st.mu.Lock()
	st.solution = sol
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" && sol != nil {
		if err := SaveSolution(cachePath, sol); err != nil {
			log.Printf("warning: failed to save solution cache: %v", err)
		}
	}
}

// GetSolution returns the latest solution, or nil if none exists.
func (st *StateTracker) GetSolution() *Solution {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.solution
}

// HasSolution returns true once a solution has been stored or loaded.
func (st *StateTracker) HasSolution() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.solution != nil
}

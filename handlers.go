package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kwv/skylocate/locate"
)

// maxRequestBytes limits POST bodies.
const maxRequestBytes = 10 << 20

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *locate.StateTracker, config *locate.Config, solver *locate.Solver) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status       string    `json:"status"`
			Timestamp    time.Time `json:"timestamp"`
			HasSolution  bool      `json:"hasSolution"`
			Observations int       `json:"observations"`
			Cameras      int       `json:"cameras"`
		}{
			Status:       "ok",
			Timestamp:    time.Now(),
			HasSolution:  stateTracker.HasSolution(),
			Observations: stateTracker.ObservationCount(),
			Cameras:      len(config.Cameras),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Latest solution
	mux.HandleFunc("/targets.json", func(w http.ResponseWriter, r *http.Request) {
		sol := stateTracker.GetSolution()
		if sol == nil {
			http.Error(w, "No solution available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		writeJSONResponse(w, "application/json", sol)
	})

	// Latest solution as GeoJSON
	mux.HandleFunc("/targets.geojson", func(w http.ResponseWriter, r *http.Request) {
		sol := stateTracker.GetSolution()
		if sol == nil {
			http.Error(w, "No solution available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		writeJSONResponse(w, "application/geo+json", locate.SolutionToFeatureCollection(sol, locate.DefaultRayTrackLength))
	})

	// Raster top view
	mux.HandleFunc("/topview.png", func(w http.ResponseWriter, r *http.Request) {
		sol := stateTracker.GetSolution()
		if sol == nil {
			http.Error(w, "No solution available", http.StatusServiceUnavailable)
			return
		}

		renderer := locate.NewTopViewRenderer(sol)
		renderer.Cameras = config.Cameras

		var buf bytes.Buffer
		if err := renderer.EncodePNG(&buf); err != nil {
			log.Printf("Error encoding top view PNG: %v", err)
			http.Error(w, "Render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	})

	// Vector top view
	mux.HandleFunc("/topview.svg", func(w http.ResponseWriter, r *http.Request) {
		sol := stateTracker.GetSolution()
		if sol == nil {
			http.Error(w, "No solution available", http.StatusServiceUnavailable)
			return
		}

		var buf bytes.Buffer
		if err := locate.NewVectorRenderer(sol, config.Cameras).RenderToSVG(&buf); err != nil {
			log.Printf("Error rendering top view SVG: %v", err)
			http.Error(w, "Render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	})

	// Buffered observations: GET lists, POST adds
	mux.HandleFunc("/observations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			obs := stateTracker.Observations()
			if obs == nil {
				obs = []locate.Observation{}
			}
			writeJSONResponse(w, "application/json", obs)
		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
			if err != nil {
				http.Error(w, "Error reading body", http.StatusBadRequest)
				return
			}
			obs, err := locate.DecodeObservations(body, r.URL.Query().Get("camera"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for _, o := range obs {
				if config.GetCameraByID(o.CameraID) == nil {
					http.Error(w, "unknown camera "+o.CameraID, http.StatusBadRequest)
					return
				}
			}
			stateTracker.AddObservations(obs)
			log.Printf("[HTTP] accepted %d observation(s) from %s", len(obs), r.RemoteAddr)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// One-off solve of a posted input document; does not touch the service state
	mux.HandleFunc("/solve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}
		in, err := locate.ParseInputJSON(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rays, err := in.Rays(config.Cameras)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sol, err := solver.Solve(r.Context(), rays)
		if err != nil {
			log.Printf("[HTTP] /solve failed: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("[HTTP] /solve: %d rays -> %d targets", sol.RayCount, len(sol.Targets))
		writeJSONResponse(w, "application/json", sol)
	})

	return mux
}

func writeJSONResponse(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

package primaryserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jacokyle01/live-analysis/analysis"
	"github.com/jacokyle01/live-analysis/board"
	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/worker"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// statusFor maps API errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrIllegalMove):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNothingToUndo), errors.Is(err, errPositionChanged),
		errors.Is(err, worker.ErrSessionBusy), errors.Is(err, analysis.ErrSchedulerRunning):
		return http.StatusConflict
	case errors.Is(err, worker.ErrNoMove):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case worker.IsFatal(err), errors.Is(err, worker.ErrStopTimeout), errors.Is(err, analysis.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

// HTTP handlers
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := s.analyzer.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, analysis.FormatText(snap)+"\n")
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Position())
}

func (s *Server) handlePlayMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Move models.Move `json:"move"` // e.g. "e2e4", "e7e8q"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !req.Move.Valid() {
		http.Error(w, "Invalid move: "+string(req.Move), http.StatusBadRequest)
		return
	}

	view, err := s.PlayMove(req.Move)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := s.Undo()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Reset())
}

func (s *Server) handleEngineMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The body is optional; depth 0 uses the configured engine-move depth.
	var req struct {
		Depth int `json:"depth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Depth < 0 {
		http.Error(w, "Invalid depth", http.StatusBadRequest)
		return
	}

	move, view, err := s.PlayEngineMove(r.Context(), models.SearchLimit{Depth: req.Depth})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"move":     move,
		"position": view,
	})
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.analyzer.Start(s.runCtx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.analyzer.Status())
}

func (s *Server) handleStopAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.analyzer.Stop()
	writeJSON(w, s.analyzer.Status())
}

func (s *Server) handleRestartEngine(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.analyzer.Respawn(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.analyzer.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"analysis": s.analyzer.Status(),
		"position": s.Position(),
	})
}

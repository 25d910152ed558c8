package primaryserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jacokyle01/live-analysis/analysis"
	"github.com/jacokyle01/live-analysis/board"
	"github.com/jacokyle01/live-analysis/models"
)

// Analyzer is what the HTTP API needs from analysis.Analyzer.
type Analyzer interface {
	SetPosition(pos models.Position) uint64
	Latest() (models.AnalysisSnapshot, bool)
	Start(ctx context.Context) error
	Stop()
	EngineMove(ctx context.Context, limit models.SearchLimit) (models.Move, error)
	Respawn(ctx context.Context) error
	Status() analysis.Status
}

// Server exposes the game board and its live analysis over HTTP
type Server struct {
	analyzer Analyzer
	logger   *slog.Logger

	// runCtx bounds analysis started through the API.
	runCtx context.Context

	mu    sync.RWMutex
	board *board.Board
}

// NewServer creates a server for b. The analyzer is kept on b's position.
func NewServer(runCtx context.Context, a Analyzer, b *board.Board) *Server {
	s := &Server{
		analyzer: a,
		logger:   slog.Default().With("component", "server"),
		runCtx:   runCtx,
		board:    b,
	}
	a.SetPosition(b.Position())
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/analysis", s.handleGetAnalysis)
	mux.HandleFunc("/position", s.handleGetPosition)
	mux.HandleFunc("/move", s.handlePlayMove)
	mux.HandleFunc("/undo", s.handleUndo)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/engine-move", s.handleEngineMove)
	mux.HandleFunc("/scheduler/start", s.handleStartAnalysis)
	mux.HandleFunc("/scheduler/stop", s.handleStopAnalysis)
	mux.HandleFunc("/engine/restart", s.handleRestartEngine)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// StartServer serves the API on addr until ctx is done
func (s *Server) StartServer(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

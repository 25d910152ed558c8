package models

import (
	"errors"
	"fmt"
)

// SearchLimit bounds a single engine search.
type SearchLimit struct {
	Depth int `json:"depth" yaml:"depth"`
}

// EngineRequest represents one multi-line analysis request.
// Requests are values and are never modified after being issued.
type EngineRequest struct {
	Position  Position    `json:"position"`
	Limit     SearchLimit `json:"limit"`
	LineCount int         `json:"line_count"`
}

// Validate checks the request bounds.
func (r EngineRequest) Validate() error {
	if r.Limit.Depth <= 0 {
		return fmt.Errorf("depth must be positive, got %d", r.Limit.Depth)
	}
	if r.LineCount < 1 {
		return fmt.Errorf("line count must be at least 1, got %d", r.LineCount)
	}
	if r.Position.FEN == "" {
		return errors.New("position has no FEN")
	}
	return nil
}

package analysis

import (
	"sync/atomic"

	"github.com/jacokyle01/live-analysis/models"
)

// Publisher is a single slot holding the latest AnalysisSnapshot. Publish
// and Latest never block each other.
type Publisher struct {
	slot atomic.Pointer[models.AnalysisSnapshot]
}

// Publish stores snap if its Seq is greater than the stored one's and
// reports whether it did.
func (p *Publisher) Publish(snap models.AnalysisSnapshot) bool {
	next := cloneSnapshot(snap)
	for {
		cur := p.slot.Load()
		if cur != nil && next.Seq <= cur.Seq {
			return false
		}
		if p.slot.CompareAndSwap(cur, &next) {
			return true
		}
	}
}

// Latest returns a copy of the stored snapshot.
func (p *Publisher) Latest() (models.AnalysisSnapshot, bool) {
	cur := p.slot.Load()
	if cur == nil {
		return models.AnalysisSnapshot{}, false
	}
	return cloneSnapshot(*cur), true
}

// Seq returns the sequence number of the stored snapshot, or 0.
func (p *Publisher) Seq() uint64 {
	if cur := p.slot.Load(); cur != nil {
		return cur.Seq
	}
	return 0
}

func cloneSnapshot(s models.AnalysisSnapshot) models.AnalysisSnapshot {
	c := s
	c.Position = s.Position.Clone()
	c.Lines = make([]models.ScoredLine, len(s.Lines))
	for i, l := range s.Lines {
		l.PV = append([]models.Move(nil), l.PV...)
		c.Lines[i] = l
	}
	return c
}

package session

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/mode"
	"github.com/sells-group/mapmind/internal/model"
	"github.com/sells-group/mapmind/internal/selection"
)

// Snapshot is the JSON view of a session.
type Snapshot struct {
	ID          string              `json:"id"`
	Mode        mode.Mode           `json:"mode"`
	Interacting bool                `json:"interacting"`
	State       selection.State     `json:"selection_state"`
	Selection   selection.Selection `json:"selection"`
	Pending     bool                `json:"pending"`
	Generation  uint64              `json:"generation"`
	LastError   string              `json:"last_error,omitempty"`
	Overview    *model.Overview     `json:"overview,omitempty"`
	Surface     mapengine.State     `json:"surface"`
	Map         MapSettings         `json:"map"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surface, err := s.engine.Snapshot()
	if err != nil {
		return Snapshot{}, eris.Wrap(err, "session: snapshot")
	}
	snap := Snapshot{
		ID:          s.id,
		Mode:        s.coordinator.Mode(),
		Interacting: s.coordinator.Interacting(),
		State:       s.selector.Status(),
		Selection:   s.selector.Selection(),
		Pending:     s.pending,
		Generation:  s.generation,
		LastError:   s.lastErr,
		Surface:     surface,
		Map:         s.mapInfo,
		UpdatedAt:   s.updatedAt,
	}
	if s.result != nil {
		ov := s.result.Overview()
		snap.Overview = &ov
	}
	return snap, nil
}

// Result returns the last applied analysis, nil when none.
func (s *Session) Result() *model.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

package engine

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// terminal reports whether s admits a new run.
func (s State) terminal() bool {
	switch s {
	case StateIdle, StateCompleted, StateStopped, StateFailed:
		return true
	}
	return false
}

package lifecycle

import "sync/atomic"

// Phase is the process-wide lifecycle phase.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseRunning
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase moves the process to p. ShuttingDown is terminal: once set, later calls are ignored.
func SetPhase(p Phase) {
	for {
		cur := phase.Load()
		if Phase(cur) == PhaseShuttingDown {
			return
		}
		if phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

// CurrentPhase returns the current phase.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// SetShuttingDown marks the process as shutting down. Call on `exit` or SIGTERM/SIGINT.
// Health returns 503 with status shutting-down from then on.
func SetShuttingDown() {
	SetPhase(PhaseShuttingDown)
}

// reset returns the phase to Starting. For tests only.
func reset() {
	phase.Store(int32(PhaseStarting))
}

package cycleexec

// Status is the state of a cycle execution. A fresh executor is Idle, moves
// to Iterating on the first call, and always ends in exactly one of the four
// terminal states.
type Status int

const (
	StatusIdle Status = iota
	StatusIterating
	StatusConverged
	StatusMaxIterations
	StatusTimedOut
	StatusFailed
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusMaxIterations, StatusTimedOut, StatusFailed:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusIterating:
		return "iterating"
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max_iterations_reached"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

package run

// Status is the terminal outcome of a workflow run.
type Status int

const (
	// StatusSuccess means every stage completed and every cycle converged.
	StatusSuccess Status = iota
	// StatusMaxIterationsReached means at least one cycle exhausted its
	// iteration budget without converging.
	StatusMaxIterationsReached
	// StatusTimedOut means a cycle's wall-clock timeout expired.
	StatusTimedOut
	// StatusFailed means a node handler or input resolution failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusMaxIterationsReached:
		return "max_iterations_reached"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

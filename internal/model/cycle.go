package model

import "time"

// CycleConfig carries the iteration limits and termination condition for one
// declared cycle. Every edge tagged with this cycle's id forms part of the
// loop it describes.
type CycleConfig struct {
	// ID is the cycle identifier referenced by feedback edges.
	ID string
	// MaxIterations bounds the loop. Must be at least 1.
	MaxIterations int
	// ConvergeWhen is a boolean expression over flat field names, evaluated
	// against the condition node's latest flattened output after each
	// iteration. When it yields true the cycle terminates successfully.
	ConvergeWhen string
	// Timeout optionally bounds the cycle's total wall-clock time. Zero
	// means no timeout. The check happens between iterations; it never
	// interrupts a running node.
	Timeout time.Duration
}

package plan

import "fmt"

// StructureError reports an invalid workflow structure discovered at plan
// build time, such as an undeclared cycle among ordinary DAG edges. Plans
// are never produced from graphs with structure errors.
type StructureError struct {
	// NodeID names a node involved in the violation, when known.
	NodeID string
	Reason string
}

// Error implements the error interface.
func (e *StructureError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid workflow structure at node '%s': %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("invalid workflow structure: %s", e.Reason)
}

// CycleDefinitionError reports a declared cycle whose edges and configuration
// do not describe exactly one well-formed loop.
type CycleDefinitionError struct {
	CycleID string
	Reason  string
}

// Error implements the error interface.
func (e *CycleDefinitionError) Error() string {
	return fmt.Sprintf("invalid cycle definition '%s': %s", e.CycleID, e.Reason)
}

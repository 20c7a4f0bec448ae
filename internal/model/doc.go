// Package model holds the plain-data, in-memory representation of a workflow
// graph: nodes, edges with field mappings, and cycle configurations.
//
// The model carries no behavior. It is produced by a loader (see internal/hcl)
// or constructed directly in code, consumed by the planner (internal/plan),
// and treated as read-only once a plan has been built from it. A single model
// instance may therefore be shared across any number of concurrent runs.
//
// Node configuration blobs are opaque to the engine: only the handler
// registered for a node's kind ever interprets them.
package model

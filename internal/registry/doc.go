// Package registry provides the central "glue" for the module system.
//
// The Registry stores mappings between the node kinds used in workflow files
// (e.g., "counter", "http_request") and the compiled Go handlers that
// implement them. During application startup the registry is populated by the
// core modules and then checked against the loaded workflow, so a workflow
// referencing an unknown kind fails before anything runs.
package registry

package hcl_adapter

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot is a struct used to decode all possible top-level blocks from any
// workflow file.
type fileRoot struct {
	Nodes  []*nodeBlock  `hcl:"node,block"`
	Edges  []*edgeBlock  `hcl:"edge,block"`
	Cycles []*cycleBlock `hcl:"cycle,block"`
	Remain hcl.Body      `hcl:",remain"`
}

// nodeBlock declares one node: node "<kind>" "<id>" { config = {...} }.
// The config blob is opaque to the engine; it is handed to the node's
// handler verbatim.
type nodeBlock struct {
	Kind   string         `hcl:"kind,label"`
	ID     string         `hcl:"id,label"`
	Config hcl.Expression `hcl:"config,optional"`
}

// edgeBlock declares one edge. The mapping object's keys are the target
// node's input names; its values are dotted paths into the source node's
// output. An edge carrying a cycle id is a feedback edge of that cycle.
type edgeBlock struct {
	From    string         `hcl:"from"`
	To      string         `hcl:"to"`
	Mapping hcl.Expression `hcl:"mapping,optional"`
	Cycle   *string        `hcl:"cycle,optional"`
}

// cycleBlock configures one declared cycle:
// cycle "<id>" { max_iterations converge_when timeout_seconds? }.
type cycleBlock struct {
	ID             string `hcl:"id,label"`
	MaxIterations  int    `hcl:"max_iterations"`
	ConvergeWhen   string `hcl:"converge_when"`
	TimeoutSeconds *int   `hcl:"timeout_seconds,optional"`
}

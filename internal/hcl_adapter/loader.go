package hcl_adapter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/fsutil"
	"github.com/vk/gridloop/internal/model"
)

// Loader is the HCL-specific workflow file loader. It produces a validated
// graph; structural validation here covers referential integrity, while
// DAG acyclicity is proved later at plan build.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under the given paths and merges their blocks
// into a single graph.
func (l *Loader) Load(ctx context.Context, paths ...string) (*model.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	var files []string
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl workflow files found in %v", paths)
	}
	logger.Debug("Discovered workflow files.", "count", len(files))

	parser := hclparse.NewParser()
	var root fileRoot
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var fr fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &fr); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		root.Nodes = append(root.Nodes, fr.Nodes...)
		root.Edges = append(root.Edges, fr.Edges...)
		root.Cycles = append(root.Cycles, fr.Cycles...)
	}

	graph, err := l.translate(&root)
	if err != nil {
		return nil, err
	}
	logger.Info("Workflow loaded.", "nodes", len(graph.Nodes), "edges", len(graph.Edges), "cycles", len(graph.Cycles))
	return graph, nil
}

// translate merges the decoded blocks into a graph and checks referential
// integrity across them.
func (l *Loader) translate(root *fileRoot) (*model.Graph, error) {
	g := &model.Graph{}

	nodeIDs := make(map[string]bool, len(root.Nodes))
	for _, block := range root.Nodes {
		if nodeIDs[block.ID] {
			return nil, fmt.Errorf("duplicate node id '%s'", block.ID)
		}
		nodeIDs[block.ID] = true

		config, err := l.translateConfig(block)
		if err != nil {
			return nil, err
		}
		g.Nodes = append(g.Nodes, &model.Node{ID: block.ID, Kind: block.Kind, Config: config})
	}

	cycleIDs := make(map[string]bool, len(root.Cycles))
	for _, block := range root.Cycles {
		if cycleIDs[block.ID] {
			return nil, fmt.Errorf("duplicate cycle id '%s'", block.ID)
		}
		cycleIDs[block.ID] = true

		cfg, err := l.translateCycle(block)
		if err != nil {
			return nil, err
		}
		g.Cycles = append(g.Cycles, cfg)
	}

	referenced := make(map[string]bool, len(cycleIDs))
	for _, block := range root.Edges {
		if !nodeIDs[block.From] {
			return nil, fmt.Errorf("edge references unknown node '%s'", block.From)
		}
		if !nodeIDs[block.To] {
			return nil, fmt.Errorf("edge references unknown node '%s'", block.To)
		}

		edge := model.Edge{Source: block.From, Target: block.To}
		if block.Cycle != nil {
			if *block.Cycle == "" {
				return nil, fmt.Errorf("edge '%s' -> '%s': cycle id must not be empty", block.From, block.To)
			}
			if !cycleIDs[*block.Cycle] {
				return nil, fmt.Errorf("edge '%s' -> '%s' references undeclared cycle '%s'", block.From, block.To, *block.Cycle)
			}
			edge.Cycle = *block.Cycle
			referenced[*block.Cycle] = true
		}

		mapping, err := l.translateMapping(block)
		if err != nil {
			return nil, err
		}
		edge.Mapping = mapping
		g.Edges = append(g.Edges, edge)
	}

	for _, cfg := range g.Cycles {
		if !referenced[cfg.ID] {
			return nil, fmt.Errorf("cycle '%s' is declared but no edge references it", cfg.ID)
		}
	}

	model.SortEdges(g.Edges)
	return g, nil
}

func (l *Loader) translateConfig(block *nodeBlock) (map[string]any, error) {
	if !isExprDefined(block.Config) {
		return nil, nil
	}
	val, diags := block.Config.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("node '%s': invalid config: %w", block.ID, diags)
	}
	native, err := ctyValueToInterface(val)
	if err != nil {
		return nil, fmt.Errorf("node '%s': invalid config: %w", block.ID, err)
	}
	config, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node '%s': config must be an object", block.ID)
	}
	return config, nil
}

func (l *Loader) translateCycle(block *cycleBlock) (*model.CycleConfig, error) {
	if block.MaxIterations < 1 {
		return nil, fmt.Errorf("cycle '%s': max_iterations must be at least 1, got %d", block.ID, block.MaxIterations)
	}
	if block.ConvergeWhen == "" {
		return nil, fmt.Errorf("cycle '%s': converge_when must not be empty", block.ID)
	}
	cfg := &model.CycleConfig{
		ID:            block.ID,
		MaxIterations: block.MaxIterations,
		ConvergeWhen:  block.ConvergeWhen,
	}
	if block.TimeoutSeconds != nil {
		if *block.TimeoutSeconds < 1 {
			return nil, fmt.Errorf("cycle '%s': timeout_seconds must be at least 1, got %d", block.ID, *block.TimeoutSeconds)
		}
		cfg.Timeout = time.Duration(*block.TimeoutSeconds) * time.Second
	}
	return cfg, nil
}

func (l *Loader) translateMapping(block *edgeBlock) ([]model.FieldRef, error) {
	if !isExprDefined(block.Mapping) {
		return nil, nil
	}
	val, diags := block.Mapping.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("edge '%s' -> '%s': invalid mapping: %w", block.From, block.To, diags)
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("edge '%s' -> '%s': mapping must be an object", block.From, block.To)
	}

	var refs []model.FieldRef
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.Type() != cty.String {
			return nil, fmt.Errorf("edge '%s' -> '%s': mapping value for '%s' must be a source path string", block.From, block.To, k.AsString())
		}
		refs = append(refs, model.FieldRef{Path: v.AsString(), Target: k.AsString()})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Target < refs[j].Target })
	return refs, nil
}

// isExprDefined checks if an HCL expression was actually present in the
// source. The decoder populates optional fields with non-nil, zero-width
// expression objects, so a simple nil check is insufficient; a real
// attribute occupies bytes in the file.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	exprRange := expr.Range()
	return exprRange.End.Byte > exprRange.Start.Byte
}

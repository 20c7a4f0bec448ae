// Package plan turns a workflow graph into an immutable, deterministic
// execution plan.
//
// Planning is a three-phase pipeline, each phase a pure function of its
// inputs:
//
//  1. Classify splits edges into DAG edges and declared cycle edges and
//     proves the DAG-only subgraph acyclic. An undeclared cycle is a fatal
//     structure error: loops must be opted into explicitly, never implied
//     by ordinary edges.
//  2. ResolveGroups collects the cycle edges sharing a cycle id into Group
//     descriptors, working out each loop's entry node, exit (condition)
//     node, member order and downstream dependents.
//  3. Build runs Kahn's algorithm over the DAG with every group collapsed
//     into a single vertex, producing an ordered stage list that alternates
//     batches of independent nodes with whole cycle groups.
//
// Ties in the ready set are always broken by id ordering, so planning the
// same graph twice yields byte-identical plans. The resulting Plan is
// read-only and may be shared freely across concurrent runs.
package plan

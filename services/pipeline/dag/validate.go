// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

// =============================================================================
// Types
// =============================================================================

// Edge is a directed connection between two node identifiers.
//
// Either endpoint may name an identifier that was never declared. Such edges
// are tolerated and ignored for cycle detection.
type Edge struct {
	// Source is the identifier of the upstream node.
	Source string

	// Target is the identifier of the downstream node.
	Target string
}

// Result is the structural summary of a graph.
//
// # Fields
//
//   - NodeCount: Number of node entries supplied, duplicates included.
//   - EdgeCount: Number of edge entries supplied, dangling edges included.
//   - IsDAG: True if the declared nodes and their resolvable edges contain
//     no directed cycle. An empty graph is a DAG.
type Result struct {
	NodeCount int
	EdgeCount int
	IsDAG     bool
}

// Analysis extends Result with the intermediate facts Kahn's algorithm
// produces on the way to the DAG verdict.
//
// # Fields
//
//   - Order: Settled node ids in topological order. Complete only when
//     IsDAG is true.
//   - Cyclic: Distinct node ids that were never settled, in declaration
//     order. These sit on a cycle or downstream of one. Empty for a DAG.
//   - DanglingEdges: Indexes into the input edge slice whose source or
//     target was not declared.
//   - DuplicateIDs: Node ids declared more than once, each listed once in
//     the order the first repeat was seen.
type Analysis struct {
	Result

	Order         []string
	Cyclic        []string
	DanglingEdges []int
	DuplicateIDs  []string
}

// =============================================================================
// Validation
// =============================================================================

// Validate reports node count, edge count and DAG status for a graph.
//
// # Description
//
// Validate is the contract used by every transport. It is Analyze with the
// diagnostic fields dropped.
//
// # Inputs
//
//   - nodes: Declared node ids. May be empty or contain duplicates.
//   - edges: Directed edges. Endpoints may reference undeclared ids.
//
// # Outputs
//
//   - Result: Raw counts and the DAG verdict. Never fails.
//
// # Examples
//
//	res := Validate([]string{"A"}, []Edge{{Source: "A", Target: "A"}})
//	// res.IsDAG == false (self-loop)
//
// # Thread Safety
//
// Safe for concurrent use; no state survives the call.
func Validate(nodes []string, edges []Edge) Result {
	return Analyze(nodes, edges).Result
}

// Analyze runs Kahn's algorithm and returns the verdict with diagnostics.
//
// # Description
//
// Builds an index-based adjacency list over the distinct declared ids,
// seeds a FIFO worklist with zero in-degree nodes in declaration order and
// settles nodes until the worklist drains. The graph is acyclic iff every
// distinct id was settled.
//
// Duplicate ids collapse to their first declaration. NodeCount still
// reports the raw input length so callers see exactly what they sent.
//
// # Inputs
//
//   - nodes: Declared node ids.
//   - edges: Directed edges between ids.
//
// # Outputs
//
//   - Analysis: Result plus topological order, unsettled ids, dangling edge
//     indexes and duplicate ids.
//
// # Limitations
//
//   - Cyclic lists every unsettled node, not a minimal cycle.
//
// # Thread Safety
//
// Safe for concurrent use.
func Analyze(nodes []string, edges []Edge) Analysis {
	a := Analysis{
		Result: Result{
			NodeCount: len(nodes),
			EdgeCount: len(edges),
		},
	}

	// Assign dense indexes; the first declaration of an id keeps its slot.
	index := make(map[string]int, len(nodes))
	ids := make([]string, 0, len(nodes))
	var repeated map[string]struct{}
	for _, id := range nodes {
		if _, ok := index[id]; ok {
			if repeated == nil {
				repeated = make(map[string]struct{})
			}
			if _, seen := repeated[id]; !seen {
				repeated[id] = struct{}{}
				a.DuplicateIDs = append(a.DuplicateIDs, id)
			}
			continue
		}
		index[id] = len(ids)
		ids = append(ids, id)
	}

	successors := make([][]int, len(ids))
	inDegree := make([]int, len(ids))
	for i, e := range edges {
		src, srcOK := index[e.Source]
		dst, dstOK := index[e.Target]
		if !srcOK || !dstOK {
			a.DanglingEdges = append(a.DanglingEdges, i)
			continue
		}
		successors[src] = append(successors[src], dst)
		inDegree[dst]++
	}

	queue := newFIFO(len(ids))
	for n, degree := range inDegree {
		if degree == 0 {
			queue.push(n)
		}
	}

	order := make([]string, 0, len(ids))
	for queue.len() > 0 {
		n, _ := queue.pop()
		order = append(order, ids[n])
		for _, next := range successors[n] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue.push(next)
			}
		}
	}

	a.Order = order
	a.IsDAG = len(order) == len(ids)
	if !a.IsDAG {
		for n, degree := range inDegree {
			if degree > 0 {
				a.Cyclic = append(a.Cyclic, ids[n])
			}
		}
	}

	return a
}

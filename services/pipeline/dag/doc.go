// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag decides whether a submitted pipeline graph is acyclic.
//
// The package is the pure core of pipelinecheck. It never inspects node
// payloads, never performs I/O and never returns an error: malformed graph
// references degrade to "no edge" instead of failing the call.
//
// # Algorithm
//
// Validation uses Kahn's topological elimination:
//
//	declared ids ──► adjacency + in-degree
//	                       │
//	                       ▼
//	     worklist ◄── ids with in-degree 0 (declaration order)
//	        │
//	        ├─► pop front, mark settled
//	        └─► decrement successors, enqueue those reaching 0
//
//	settled == distinct ids  ⇒  DAG
//	settled <  distinct ids  ⇒  at least one cycle
//
// A node on a cycle, or reachable only through one, never reaches in-degree
// zero and so is never settled.
//
// # Usage
//
//	res := dag.Validate(
//	    []string{"A", "B", "C"},
//	    []dag.Edge{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}},
//	)
//	// res == dag.Result{NodeCount: 3, EdgeCount: 2, IsDAG: true}
//
// # Thread Safety
//
// Validate and Analyze keep all state local to the call and are safe for
// concurrent use.
package dag

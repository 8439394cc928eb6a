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

// fifo is a first-in first-out worklist of node indexes.
//
// Pops advance a read cursor instead of reslicing from the front, so both
// push and pop are O(1). Kahn's algorithm enqueues every node at most once,
// which bounds the backing array by the node count.
type fifo struct {
	items []int
	head  int
}

// newFIFO returns a worklist with room for capacity entries.
func newFIFO(capacity int) *fifo {
	return &fifo{items: make([]int, 0, capacity)}
}

func (q *fifo) push(v int) {
	q.items = append(q.items, v)
}

// pop removes and returns the oldest entry. ok is false when empty.
func (q *fifo) pop() (v int, ok bool) {
	if q.head >= len(q.items) {
		return 0, false
	}
	v = q.items[q.head]
	q.head++
	return v, true
}

func (q *fifo) len() int {
	return len(q.items) - q.head
}

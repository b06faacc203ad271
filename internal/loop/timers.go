// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline-ordered timer queue shared by one-shot and periodic watchers.

package loop

import "container/heap"

// timerHeap orders nodes by deadline. Guarded by the owning loop's mutex.
type timerHeap []*timerNode

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := x.(*timerNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[:n-1]
	return node
}

// schedule queues or requeues a node at its current deadline.
func (h *timerHeap) schedule(n *timerNode) {
	if n.index >= 0 {
		heap.Fix(h, n.index)
		return
	}
	heap.Push(h, n)
}

// unschedule removes a node if queued. Safe on unqueued nodes.
func (h *timerHeap) unschedule(n *timerNode) {
	if n.index >= 0 {
		heap.Remove(h, n.index)
	}
}

// head returns the earliest node without removing it.
func (h timerHeap) head() *timerNode {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

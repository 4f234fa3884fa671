package sim

import "container/heap"

// eventHeap orders events by (Time, Seq) ascending. Seq is a monotonic
// insertion counter, so two events at the same timestamp always pop in
// the order they were scheduled regardless of heap internals.
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

type eventQueue struct {
	h    eventHeap
	next uint64
}

func (q *eventQueue) push(ev Event) {
	ev.seq = q.next
	q.next++
	heap.Push(&q.h, ev)
}

func (q *eventQueue) pop() (Event, bool) {
	if len(q.h) == 0 {
		return Event{}, false
	}
	return heap.Pop(&q.h).(Event), true
}

func (q *eventQueue) len() int { return len(q.h) }

func (q *eventQueue) reset() { q.h = q.h[:0]; q.next = 0 }

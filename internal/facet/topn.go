package facet

import "container/heap"

// topByCount returns the n best entries in count-desc order without sorting
// the whole candidate list.
func topByCount(entries []*TermEntry, n int) []*TermEntry {
	if n <= 0 {
		return nil
	}
	if n >= len(entries) {
		out := make([]*TermEntry, len(entries))
		copy(out, entries)
		SortEntries(out, SortCount)
		return out
	}
	h := &entryHeap{}
	heap.Init(h)
	for _, e := range entries {
		heap.Push(h, e)
		if h.Len() > n {
			heap.Pop(h)
		}
	}
	out := make([]*TermEntry, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(*TermEntry)
	}
	return out
}

// entryHeap keeps the worst ranked entry at the root.
type entryHeap []*TermEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return countBefore(h[j], h[i]) }

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*TermEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

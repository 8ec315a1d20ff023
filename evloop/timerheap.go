package evloop

// timerHeap orders timer Sources by deadline, implementing
// container/heap.Interface. There is no third-party timer-heap library
// anywhere in the retrieved corpus, so this is the one piece of evloop
// built directly on the standard library rather than an ecosystem
// dependency (see DESIGN.md's evloop entry).
type timerHeap []*Source

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *timerHeap) Push(x any) {
	src := x.(*Source)
	src.heapIdx = len(*h)
	*h = append(*h, src)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	src := old[n-1]
	old[n-1] = nil
	src.heapIdx = -1
	*h = old[:n-1]
	return src
}

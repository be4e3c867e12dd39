package vectorstore

import (
	"container/heap"
	"sort"
)

type candidate struct {
	match Match
	seq   uint64
}

// worse 为 true 表示 a 应排在 b 之后：相似度更低，或相同相似度但插入更晚。
func worse(a, b candidate) bool {
	if a.match.Similarity != b.match.Similarity {
		return a.match.Similarity < b.match.Similarity
	}
	return a.seq > b.seq
}

// minHeap 的堆顶是当前保留集合中最差的候选。
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK 只保留最好的 k 个候选，避免对全量结果排序。
type topK struct {
	k int
	h minHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(minHeap, 0, k)}
}

func (t *topK) offer(c candidate) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, c)
		return
	}
	if worse(t.h[0], c) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// sorted 按相似度降序返回结果，相同相似度按插入顺序。
func (t *topK) sorted() []Match {
	items := make([]candidate, len(t.h))
	copy(items, t.h)
	sort.Slice(items, func(i, j int) bool { return worse(items[j], items[i]) })
	out := make([]Match, len(items))
	for i, c := range items {
		out[i] = c.match
	}
	return out
}

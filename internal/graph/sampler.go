package graph

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sync"
)

// Sampler draws weighted samples without replacement from a fixed edge
// snapshot using weighted reservoir sampling: each edge gets the priority
// -ln(U)/weight for a uniform U in (0,1) and the k smallest priorities win.
//
// Equal priorities are ordered by edge position, so the result depends only
// on the snapshot and the random source. Zero-weight edges get an infinite
// priority and are only returned when k exceeds the positive-weight edges.
type Sampler struct {
	mu    sync.Mutex
	edges []Edge
	rng   *rand.Rand
}

// NewSampler builds a sampler over edges. The sampler takes ownership of the
// slice.
func NewSampler(edges []Edge, src rand.Source) *Sampler {
	return &Sampler{edges: edges, rng: rand.New(src)}
}

// Len returns the number of edges in the snapshot.
func (s *Sampler) Len() int { return len(s.edges) }

// SampleK returns min(k, Len()) distinct edges ordered by ascending priority.
func (s *Sampler) SampleK(k int) []Edge {
	if k <= 0 || len(s.edges) == 0 {
		return nil
	}
	if k > len(s.edges) {
		k = len(s.edges)
	}

	s.mu.Lock()
	h := make(reservoir, 0, k)
	for i, e := range s.edges {
		c := candidate{priority: priority(s.rng, e.Weight), index: i}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if c.less(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	s.mu.Unlock()

	out := make([]Edge, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = s.edges[heap.Pop(&h).(candidate).index]
	}
	return out
}

func priority(rng *rand.Rand, weight float64) float64 {
	if !(weight > 0) {
		return math.Inf(1)
	}
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return -math.Log(u) / weight
}

type candidate struct {
	priority float64
	index    int
}

func (c candidate) less(o candidate) bool {
	if c.priority != o.priority {
		return c.priority < o.priority
	}
	return c.index < o.index
}

// reservoir is a max-heap: the root is the worst candidate kept so far.
type reservoir []candidate

func (r reservoir) Len() int           { return len(r) }
func (r reservoir) Less(i, j int) bool { return r[j].less(r[i]) }
func (r reservoir) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r *reservoir) Push(x any)        { *r = append(*r, x.(candidate)) }
func (r *reservoir) Pop() any {
	old := *r
	n := len(old)
	c := old[n-1]
	*r = old[:n-1]
	return c
}

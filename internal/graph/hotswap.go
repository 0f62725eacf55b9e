package graph

import (
	"io"
	"sync"
)

// generation is one swapped-in graph and the calls still running on it.
type generation struct {
	g        Graph
	inflight sync.WaitGroup
}

// HotSwapGraph is a thread-safe wrapper that allows swapping the underlying graph instance.
type HotSwapGraph struct {
	mu      sync.RWMutex
	current *generation
}

func NewHotSwapGraph(initial Graph) *HotSwapGraph {
	return &HotSwapGraph{current: &generation{g: initial}}
}

// Swap replaces the current graph and returns the old one. Calls that
// started on the old graph run to completion first; then it is closed
// when it implements io.Closer. New calls go to newGraph immediately.
func (h *HotSwapGraph) Swap(newGraph Graph) (Graph, error) {
	h.mu.Lock()
	old := h.current
	h.current = &generation{g: newGraph}
	h.mu.Unlock()

	old.inflight.Wait()
	if closer, ok := old.g.(io.Closer); ok {
		return old.g, closer.Close()
	}
	return old.g, nil
}

// Current returns the graph requests are delegated to.
func (h *HotSwapGraph) Current() Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.g
}

// acquire pins the current generation until the returned release runs.
// The count is taken under the read lock so Swap never waits on a
// generation that can still gain callers.
func (h *HotSwapGraph) acquire() (Graph, func()) {
	h.mu.RLock()
	gen := h.current
	gen.inflight.Add(1)
	h.mu.RUnlock()
	return gen.g, gen.inflight.Done
}

// GetNode delegates to current graph.
func (h *HotSwapGraph) GetNode(id string) (*Node, error) {
	g, release := h.acquire()
	defer release()
	return g.GetNode(id)
}

// ListChildren delegates to current graph.
func (h *HotSwapGraph) ListChildren(id string) ([]string, error) {
	g, release := h.acquire()
	defer release()
	return g.ListChildren(id)
}

// ReadContent delegates to current graph.
func (h *HotSwapGraph) ReadContent(id string, buf []byte, offset int64) (int, error) {
	g, release := h.acquire()
	defer release()
	return g.ReadContent(id, buf, offset)
}

// Invalidate delegates to current graph.
func (h *HotSwapGraph) Invalidate(id string) {
	g, release := h.acquire()
	defer release()
	g.Invalidate(id)
}

var _ Graph = (*HotSwapGraph)(nil)

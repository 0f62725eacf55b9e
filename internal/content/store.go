package content

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agentic-research/facetfs/internal/schema"
)

// Store is read access to physically stored nodes. Implementations return
// states the caller may modify.
type Store interface {
	GetNodeState(ctx context.Context, id ID) (*NodeState, error)
}

// Writer persists node states. Child identities must be physical IDs.
type Writer interface {
	PutNode(ctx context.Context, st *NodeState) error
}

type ReadWriter interface {
	Store
	Writer
}

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[ID]*NodeState
}

// NewMemoryStore returns a store holding an empty root node.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{nodes: make(map[ID]*NodeState)}
	s.nodes[RootID] = NewNodeState(RootID, nil, schema.NTRoot)
	return s
}

func (s *MemoryStore) GetNodeState(_ context.Context, id ID) (*NodeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st.Clone(), nil
}

func (s *MemoryStore) PutNode(_ context.Context, st *NodeState) error {
	id, ok := st.ID.(ID)
	if !ok {
		return fmt.Errorf("put node: %s is not a physical id", st.ID.Key())
	}
	if err := checkPhysicalChildren(st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = st.Clone()
	return nil
}

// Len returns the number of stored nodes, root included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func checkPhysicalChildren(st *NodeState) error {
	for _, c := range st.Children {
		if _, ok := c.ID.(ID); !ok {
			return fmt.Errorf("put node %s: child %s is not a physical id", st.ID.Key(), c.Segment())
		}
	}
	return nil
}

// ParseSegment splits "name[n]" into its name and 1-based index.
func ParseSegment(seg string) (string, int, error) {
	if !strings.HasSuffix(seg, "]") {
		return seg, 1, nil
	}
	open := strings.LastIndexByte(seg, '[')
	if open <= 0 {
		return "", 0, fmt.Errorf("malformed path segment %q", seg)
	}
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("malformed path segment %q", seg)
	}
	return seg[:open], n, nil
}

// ResolvePath walks an absolute path from the root through stored children.
func ResolvePath(ctx context.Context, s Store, path string) (ID, error) {
	id := RootID
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		name, idx, err := ParseSegment(seg)
		if err != nil {
			return "", err
		}
		st, err := s.GetNodeState(ctx, id)
		if err != nil {
			return "", err
		}
		c, ok := st.Child(name, idx)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		next, ok := c.ID.(ID)
		if !ok {
			return "", fmt.Errorf("%w: %s is not a stored node", ErrNotFound, path)
		}
		id = next
	}
	return id, nil
}

// Walk visits id and its stored descendants depth first in child order.
// Returning a non-nil error from fn stops the walk.
func Walk(ctx context.Context, s Store, id ID, fn func(*NodeState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := s.GetNodeState(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	for _, c := range st.Children {
		child, ok := c.ID.(ID)
		if !ok {
			continue
		}
		if err := Walk(ctx, s, child, fn); err != nil {
			return err
		}
	}
	return nil
}

func sortMixins(st *NodeState) {
	sort.Strings(st.Mixins)
}

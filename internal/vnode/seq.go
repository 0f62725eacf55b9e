package vnode

import "strings"

// Seq is a persistent append-only list of strings. Appending shares the
// existing elements, so every descent level costs O(1).
type Seq struct {
	last *seqNode
	n    int
}

type seqNode struct {
	prev *seqNode
	val  string
}

func SeqOf(vals ...string) Seq {
	var s Seq
	for _, v := range vals {
		s = s.Append(v)
	}
	return s
}

// Append returns a sequence with v added; s is unchanged.
func (s Seq) Append(v string) Seq {
	return Seq{last: &seqNode{prev: s.last, val: v}, n: s.n + 1}
}

func (s Seq) Len() int { return s.n }

// Slice returns the elements oldest first in a new slice.
func (s Seq) Slice() []string {
	if s.n == 0 {
		return nil
	}
	out := make([]string, s.n)
	i := s.n - 1
	for n := s.last; n != nil; n = n.prev {
		out[i] = n.val
		i--
	}
	return out
}

func (s Seq) String() string {
	return "[" + strings.Join(s.Slice(), " ") + "]"
}

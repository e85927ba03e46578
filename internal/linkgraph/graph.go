// Package linkgraph tracks forwarding aliases between program items.
//
// Items are addressed by stable IDs. An item is either unlinked, linked
// to exactly one other item, or broken because the item it forwarded to
// was unlinked. Link refuses edges that would close a cycle, so Resolve
// always terminates.
package linkgraph

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokenLinkChain is returned when a chain reaches a removed link.
	ErrBrokenLinkChain = errors.New("linkgraph: broken link chain")

	// ErrLinkCycle is returned when a link would make a chain circular.
	ErrLinkCycle = errors.New("linkgraph: link would create a cycle")
)

// ID identifies an item in a Graph. The zero ID is never allocated.
type ID uint32

// Graph stores forward edges and their reverse lists.
type Graph struct {
	last    ID
	forward map[ID]ID
	reverse map[ID][]ID
	broken  map[ID]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		forward: make(map[ID]ID),
		reverse: make(map[ID][]ID),
		broken:  make(map[ID]struct{}),
	}
}

// NewID allocates a fresh item ID.
func (g *Graph) NewID() ID {
	g.last++
	return g.last
}

// Link makes a forward to b. Linking an item to itself does nothing.
func (g *Graph) Link(a, b ID) error {
	if a == b {
		return nil
	}
	for cur := b; ; {
		if cur == a {
			return fmt.Errorf("%w: %d -> %d", ErrLinkCycle, a, b)
		}
		next, ok := g.forward[cur]
		if !ok {
			break
		}
		cur = next
	}
	g.detach(a)
	g.forward[a] = b
	g.reverse[b] = append(g.reverse[b], a)
	delete(g.broken, a)
	return nil
}

// detach removes a's forward edge and its entry in the target's reverse list.
func (g *Graph) detach(a ID) {
	old, ok := g.forward[a]
	if !ok {
		return
	}
	delete(g.forward, a)
	refs := g.reverse[old]
	for i, r := range refs {
		if r == a {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(g.reverse, old)
	} else {
		g.reverse[old] = refs
	}
}

// Detach removes a's forward edge and leaves items forwarding to a alone.
func (g *Graph) Detach(a ID) {
	g.detach(a)
	delete(g.broken, a)
}

// Unlink removes a's forward edge. Every item that forwarded to a loses
// its edge too and stays broken until it is linked again.
func (g *Graph) Unlink(a ID) {
	g.detach(a)
	delete(g.broken, a)
	for _, r := range g.reverse[a] {
		delete(g.forward, r)
		g.broken[r] = struct{}{}
	}
	delete(g.reverse, a)
}

// Target returns the item a forwards to directly.
func (g *Graph) Target(a ID) (ID, bool) {
	b, ok := g.forward[a]
	return b, ok
}

// IsLinked reports whether a forwards to another item.
func (g *Graph) IsLinked(a ID) bool {
	_, ok := g.forward[a]
	return ok
}

// IsBroken reports whether a lost its link through Unlink.
func (g *Graph) IsBroken(a ID) bool {
	_, ok := g.broken[a]
	return ok
}

// Resolve follows the chain starting at a and returns its sink.
func (g *Graph) Resolve(a ID) (ID, error) {
	return g.ResolveWhile(a, nil)
}

// ResolveWhile follows the chain starting at a, stopping before any hop
// for which follow returns false. A nil follow accepts every hop.
func (g *Graph) ResolveWhile(a ID, follow func(from, to ID) bool) (ID, error) {
	cur := a
	for {
		if _, ok := g.broken[cur]; ok {
			return cur, fmt.Errorf("%w: item %d", ErrBrokenLinkChain, cur)
		}
		next, ok := g.forward[cur]
		if !ok {
			return cur, nil
		}
		if follow != nil && !follow(cur, next) {
			return cur, nil
		}
		cur = next
	}
}

// Referrers returns the items that forward directly to a.
func (g *Graph) Referrers(a ID) []ID {
	refs := g.reverse[a]
	if len(refs) == 0 {
		return nil
	}
	out := make([]ID, len(refs))
	copy(out, refs)
	return out
}

// Forget drops every edge touching a without marking referrers broken.
func (g *Graph) Forget(a ID) {
	g.detach(a)
	delete(g.broken, a)
	for _, r := range g.reverse[a] {
		delete(g.forward, r)
	}
	delete(g.reverse, a)
}

// Len returns the number of forward edges.
func (g *Graph) Len() int {
	return len(g.forward)
}

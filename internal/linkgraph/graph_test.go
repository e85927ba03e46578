package linkgraph

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(g *Graph, n int) []ID {
	out := make([]ID, n)
	for i := range out {
		out[i] = g.NewID()
	}
	return out
}

func TestResolveChain(t *testing.T) {
	g := New()
	n := ids(g, 4)
	require.NoError(t, g.Link(n[0], n[1]))
	require.NoError(t, g.Link(n[1], n[2]))
	require.NoError(t, g.Link(n[2], n[3]))

	sink, err := g.Resolve(n[0])
	require.NoError(t, err)
	assert.Equal(t, n[3], sink)

	sink, err = g.Resolve(n[3])
	require.NoError(t, err)
	assert.Equal(t, n[3], sink)

	require.NoError(t, g.Link(n[0], n[0]))
	target, ok := g.Target(n[0])
	assert.True(t, ok)
	assert.Equal(t, n[1], target, "self link leaves the edge alone")
}

func TestLinkRejectsCycle(t *testing.T) {
	g := New()
	n := ids(g, 3)
	require.NoError(t, g.Link(n[0], n[1]))
	require.NoError(t, g.Link(n[1], n[2]))

	err := g.Link(n[2], n[0])
	assert.ErrorIs(t, err, ErrLinkCycle)
	assert.False(t, g.IsLinked(n[2]))

	err = g.Link(n[1], n[0])
	assert.ErrorIs(t, err, ErrLinkCycle)
	target, _ := g.Target(n[1])
	assert.Equal(t, n[2], target, "rejected link keeps the old edge")
}

func TestRelinkMovesReverseEdge(t *testing.T) {
	g := New()
	n := ids(g, 3)
	require.NoError(t, g.Link(n[0], n[1]))
	assert.Equal(t, []ID{n[0]}, g.Referrers(n[1]))

	require.NoError(t, g.Link(n[0], n[2]))
	assert.Empty(t, g.Referrers(n[1]))
	assert.Equal(t, []ID{n[0]}, g.Referrers(n[2]))
}

func TestUnlinkBreaksReferrers(t *testing.T) {
	g := New()
	n := ids(g, 4)
	require.NoError(t, g.Link(n[0], n[1]))
	require.NoError(t, g.Link(n[3], n[1]))
	require.NoError(t, g.Link(n[1], n[2]))

	g.Unlink(n[1])

	sink, err := g.Resolve(n[1])
	require.NoError(t, err)
	assert.Equal(t, n[1], sink)

	for _, a := range []ID{n[0], n[3]} {
		_, err := g.Resolve(a)
		assert.ErrorIs(t, err, ErrBrokenLinkChain)
		assert.True(t, g.IsBroken(a))
	}
	assert.Empty(t, g.Referrers(n[2]))

	require.NoError(t, g.Link(n[0], n[2]))
	sink, err = g.Resolve(n[0])
	require.NoError(t, err)
	assert.Equal(t, n[2], sink)
}

func TestResolveWhile(t *testing.T) {
	g := New()
	n := ids(g, 3)
	require.NoError(t, g.Link(n[0], n[1]))
	require.NoError(t, g.Link(n[1], n[2]))

	stop := func(from, to ID) bool { return to != n[2] }
	got, err := g.ResolveWhile(n[0], stop)
	require.NoError(t, err)
	assert.Equal(t, n[1], got)
}

func TestRandomLinksTerminate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := New()
	n := ids(g, 40)
	for i := 0; i < 500; i++ {
		a := n[rng.Intn(len(n))]
		b := n[rng.Intn(len(n))]
		switch rng.Intn(5) {
		case 0:
			g.Unlink(a)
		default:
			err := g.Link(a, b)
			if err != nil {
				assert.ErrorIs(t, err, ErrLinkCycle)
			}
		}
	}
	for _, a := range n {
		sink, err := g.Resolve(a)
		if err != nil {
			assert.ErrorIs(t, err, ErrBrokenLinkChain)
			continue
		}
		assert.False(t, g.IsLinked(sink))
	}
}

func TestForget(t *testing.T) {
	g := New()
	n := ids(g, 3)
	require.NoError(t, g.Link(n[0], n[1]))
	require.NoError(t, g.Link(n[1], n[2]))
	g.Forget(n[1])
	assert.Zero(t, g.Len())
	assert.False(t, g.IsBroken(n[0]))
}

func TestDetach(t *testing.T) {
	g := New()
	n := ids(g, 3)
	require.NoError(t, g.Link(n[0], n[1]))
	require.NoError(t, g.Link(n[1], n[2]))
	g.Detach(n[1])

	sink, err := g.Resolve(n[0])
	require.NoError(t, err)
	assert.Equal(t, n[1], sink)
	assert.False(t, g.IsBroken(n[0]))
}

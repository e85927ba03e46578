package meta

import (
	"fmt"
	"iter"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/lazy"
	"github.com/skdltmxn/ilmeta/internal/table"
)

// Mode tells whether an image was read from tables or is being built.
type Mode uint8

const (
	ModeLoaded Mode = iota
	ModeBuilding
)

func (m Mode) String() string {
	if m == ModeBuilding {
		return "building"
	}
	return "loaded"
}

// NextToken asks a creation call to assign the next free token of the
// item's kind.
const NextToken table.Token = 0

// Image is one module: its tables, heaps and materialized items.
type Image struct {
	ctx     *Context
	name    string
	mode    Mode
	loading bool

	tables      *table.Stream
	strings     *table.StringHeap
	blobs       *table.BlobHeap
	guids       *table.GUIDHeap
	userStrings *table.UserStringHeap
	usBuilder   *table.UserStringHeapBuilder

	slots [table.MaxKinds]*lazy.Slots[Item]

	exported map[string][]table.Token

	module   *Module
	assembly *Assembly
	diags    []error
}

func newBuildingImage(c *Context, name string) *Image {
	return &Image{ctx: c, name: name, mode: ModeBuilding}
}

// Context returns the owning context.
func (img *Image) Context() *Context { return img.ctx }

// Name returns the image name: the assembly name when the image has an
// Assembly row, the module name otherwise.
func (img *Image) Name() string {
	if img == nil {
		return "<nil>"
	}
	return img.name
}

// Mode returns whether img was loaded or is being built.
func (img *Image) Mode() Mode { return img.mode }

// IsLoading reports whether img is still inside its load pipeline.
func (img *Image) IsLoading() bool { return img.loading }

// Tables returns the parsed table stream of a loaded image.
func (img *Image) Tables() *table.Stream { return img.tables }

// Module returns the module item.
func (img *Image) Module() *Module { return img.module }

// Assembly returns the assembly item, or nil for a plain module.
func (img *Image) Assembly() *Assembly { return img.assembly }

// Diagnostics returns the references left dangling in tolerant mode.
func (img *Image) Diagnostics() []error { return img.diags }

// UserString returns the #US entry at index.
func (img *Image) UserString(index uint32) (string, error) {
	if img.userStrings == nil && img.usBuilder != nil {
		return table.NewUserStringHeap(img.usBuilder.Bytes()).Get(index)
	}
	if img.userStrings == nil {
		return "", fmt.Errorf("meta: %s has no #US heap", img.name)
	}
	return img.userStrings.Get(index)
}

func (img *Image) release() {
	for k := range img.slots {
		img.slots[k] = nil
	}
	img.tables = nil
}

// slotsFor returns the slots of kind k, creating them for building images.
func (img *Image) slotsFor(k table.Kind) *lazy.Slots[Item] {
	if img.slots[k] == nil && img.mode == ModeBuilding {
		img.slots[k] = lazy.NewSlots[Item](0)
	}
	return img.slots[k]
}

// Count returns the number of rows or created items of kind k.
func (img *Image) Count(k table.Kind) uint32 {
	if img.tables != nil {
		return img.tables.RowCount(k)
	}
	s := img.slots[k]
	if s == nil {
		return 0
	}
	n, _ := safecast.Conv[uint32](s.Len())
	return n
}

// Get returns the item for tok, materializing it on first use. A failed
// materialization leaves every slot it filled empty again.
func (img *Image) Get(tok table.Token) (Item, error) {
	k, ord := tok.Kind(), tok.Ordinal()
	if ord == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoItem, tok, img.name)
	}
	s := img.slots[k]
	if s == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoItem, tok, img.name)
	}
	if it, ok := s.Get(ord); ok {
		return it, nil
	}
	if img.mode == ModeBuilding || img.tables == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoItem, tok, img.name)
	}

	c := img.ctx
	mark := c.beginMaterialize()
	it, err := s.GetOrCompute(ord, func() (Item, error) {
		return img.materialize(tok)
	})
	if err == nil {
		c.record(func() { s.Clear(ord) })
	}
	c.endMaterialize(mark, err)
	if err != nil {
		return nil, loadError(img, tok, "materialize", err)
	}
	return it, nil
}

// publish fills the slot of tok before the item is complete, so that
// recursive lookups observe it.
func (img *Image) publish(tok table.Token, it Item) {
	s := img.slots[tok.Kind()]
	if err := s.Set(tok.Ordinal(), it); err != nil {
		return
	}
	img.ctx.record(func() { s.Clear(tok.Ordinal()) })
}

// published returns the item already in tok's slot.
func (img *Image) published(tok table.Token) (Item, bool) {
	s := img.slots[tok.Kind()]
	if s == nil {
		return nil, false
	}
	return s.Get(tok.Ordinal())
}

// NextTokenOfKind returns the item after prev in token order. A prev with
// ordinal 0 starts at the first row.
func (img *Image) NextTokenOfKind(k table.Kind, prev table.Token) (Item, bool) {
	start := uint32(1)
	if prev.Kind() == k && prev.Ordinal() > 0 {
		start = prev.Ordinal() + 1
	}
	n := img.Count(k)
	for ord := start; ord <= n; ord++ {
		tok := table.MakeToken(k, ord)
		it, err := img.Get(tok)
		if err != nil {
			img.ctx.log.Debug("skipping row that failed to materialize",
				zap.String("image", img.name),
				zap.Stringer("token", tok),
				zap.Error(err))
			continue
		}
		return it, true
	}
	return nil, false
}

// Items yields every item of kind k in token order, materializing rows on
// the way. Rows that fail to materialize are skipped.
func (img *Image) Items(k table.Kind) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		var prev table.Token
		for {
			it, ok := img.NextTokenOfKind(k, prev)
			if !ok || !yield(it) {
				return
			}
			prev = it.Item().token
		}
	}
}

// Classes yields the type definitions of img.
func (img *Image) Classes() iter.Seq[*Class] {
	return func(yield func(*Class) bool) {
		for it := range img.Items(table.KindTypeDef) {
			if c, ok := it.(*Class); ok && !yield(c) {
				return
			}
		}
	}
}

// LookupClass finds a top-level type definition of img by exact
// namespace and name.
func (img *Image) LookupClass(namespace, name string) (*Class, bool) {
	return img.ctx.lookupClass(img, namespace, name, false)
}

// LookupClassFold is LookupClass with case-insensitive matching.
func (img *Image) LookupClassFold(namespace, name string) (*Class, bool) {
	return img.ctx.lookupClass(img, namespace, name, true)
}

func (img *Image) row(k table.Kind, ord uint32) (table.Row, error) {
	return img.tables.DecodeRow(k, ord)
}

func (img *Image) str(index uint32) (string, error) {
	if index == 0 || img.strings == nil {
		return "", nil
	}
	return img.strings.Get(index)
}

func (img *Image) blob(row table.Row, col int) ([]byte, error) {
	index, _, _ := row.Blob(col)
	if index == 0 || img.blobs == nil {
		return nil, nil
	}
	return img.blobs.Get(index)
}

func (img *Image) guid(index uint32) ([16]byte, error) {
	if index == 0 || img.guids == nil {
		return [16]byte{}, nil
	}
	return img.guids.Get(index)
}

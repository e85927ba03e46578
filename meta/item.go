package meta

import (
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/linkgraph"
	"github.com/skdltmxn/ilmeta/internal/table"
)

// Item is implemented by every entity that lives in an image.
type Item interface {
	Item() *ProgramItem
}

// ProgramItem is the identity shared by every entity: the owning image,
// its token and a context-wide ID used for links.
type ProgramItem struct {
	image *Image
	token table.Token
	id    linkgraph.ID

	attrs       []*Attribute
	attrsLoaded bool
}

// Item returns p itself.
func (p *ProgramItem) Item() *ProgramItem { return p }

// Image returns the owning image.
func (p *ProgramItem) Image() *Image { return p.image }

// Token returns the item's token within its image.
func (p *ProgramItem) Token() table.Token { return p.token }

// ID returns the context-wide identity of the item.
func (p *ProgramItem) ID() linkgraph.ID { return p.id }

func (p *ProgramItem) ctx() *Context { return p.image.ctx }

func sameContext(a, b Item) error {
	if a.Item().image == nil || b.Item().image == nil {
		return fmt.Errorf("meta: item is not registered with an image")
	}
	if a.Item().ctx() != b.Item().ctx() {
		return fmt.Errorf("meta: items belong to different contexts")
	}
	return nil
}

// Link makes a forward to b. Linking an item to itself does nothing, and
// a link that would close a cycle fails with ErrLinkCycle.
func Link(a, b Item) error {
	if err := sameContext(a, b); err != nil {
		return err
	}
	c := a.Item().ctx()
	pa := a.Item()
	old, had := c.links.Target(pa.id)
	if err := c.links.Link(pa.id, b.Item().id); err != nil {
		return err
	}
	c.record(func() {
		if had {
			_ = c.links.Link(pa.id, old)
		} else {
			c.links.Detach(pa.id)
		}
	})
	return nil
}

// Unlink removes a's forward edge. Every item that forwarded to a becomes
// dangling until it is linked again.
func Unlink(a Item) {
	p := a.Item()
	p.ctx().links.Unlink(p.id)
}

// IsLinked reports whether item forwards to another item.
func IsLinked(item Item) bool {
	p := item.Item()
	return p.ctx().links.IsLinked(p.id)
}

// Resolve follows item's link chain to its end. A chain broken by Unlink
// yields ErrBrokenLinkChain.
func Resolve(item Item) (Item, error) {
	p := item.Item()
	c := p.ctx()
	id, err := c.links.Resolve(p.id)
	if err != nil {
		return nil, fmt.Errorf("meta: resolving %s in %s: %w", p.token, p.image.Name(), err)
	}
	return c.itemByID(id), nil
}

// ResolveWithinImage follows item's link chain but stops before a hop that
// would leave item's image.
func ResolveWithinImage(item Item) (Item, error) {
	p := item.Item()
	c := p.ctx()
	id, err := c.links.ResolveWhile(p.id, func(_, to linkgraph.ID) bool {
		return c.itemByID(to).Item().image == p.image
	})
	if err != nil {
		return nil, fmt.Errorf("meta: resolving %s in %s: %w", p.token, p.image.Name(), err)
	}
	return c.itemByID(id), nil
}

// LinkedBackTo returns the item in img that forwards, directly or through
// other items, to item.
func LinkedBackTo(item Item, img *Image) (Item, bool) {
	p := item.Item()
	c := p.ctx()
	seen := map[linkgraph.ID]bool{p.id: true}
	queue := []linkgraph.ID{p.id}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, r := range c.links.Referrers(id) {
			if seen[r] {
				continue
			}
			seen[r] = true
			ri := c.itemByID(r)
			if ri.Item().image == img {
				return ri, true
			}
			queue = append(queue, r)
		}
	}
	return nil, false
}

// Attributes yields the custom attributes attached to item. For loaded
// images the CustomAttribute table is searched on first use.
func Attributes(item Item) iter.Seq[*Attribute] {
	return func(yield func(*Attribute) bool) {
		attrs, err := LoadAttributes(item)
		if err != nil {
			item.Item().ctx().log.Warn("failed to load custom attributes",
				zap.String("image", item.Item().image.Name()),
				zap.Stringer("token", item.Item().token),
				zap.Error(err))
		}
		for _, a := range attrs {
			if !yield(a) {
				return
			}
		}
	}
}

// LoadAttributes returns the custom attributes attached to item.
func LoadAttributes(item Item) ([]*Attribute, error) {
	p := item.Item()
	if err := p.ensureAttributes(); err != nil {
		return p.attrs, err
	}
	return p.attrs, nil
}

func (p *ProgramItem) ensureAttributes() error {
	if p.attrsLoaded {
		return nil
	}
	img := p.image
	if img == nil || img.mode != ModeLoaded || img.tables == nil || len(p.attrs) > 0 {
		p.attrsLoaded = true
		return nil
	}
	if !table.HasCustomAttribute.Accepts(p.token.Kind()) || p.token.Ordinal() == 0 {
		p.attrsLoaded = true
		return nil
	}
	rows, err := img.tables.FindRows(table.KindCustomAttribute, table.CustomAttributeParent, p.token)
	if err != nil {
		return loadError(img, p.token, "search custom attributes of", err)
	}
	attrs := make([]*Attribute, 0, len(rows))
	for _, ord := range rows {
		it, err := img.Get(table.MakeToken(table.KindCustomAttribute, ord))
		if err != nil {
			return err
		}
		attrs = append(attrs, it.(*Attribute))
	}
	p.attrs = attrs
	p.attrsLoaded = true
	return nil
}

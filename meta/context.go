package meta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/lazy"
	"github.com/skdltmxn/ilmeta/internal/linkgraph"
	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/metaroot"
)

// SyntheticImageName is the name of the image holding interned classes.
const SyntheticImageName = "$Synthetic"

// Source supplies the metadata streams of one image by name.
type Source interface {
	Stream(name string) ([]byte, bool)
}

// StreamMap is an in-memory Source.
type StreamMap map[string][]byte

// Stream returns the named stream.
func (m StreamMap) Stream(name string) ([]byte, bool) {
	b, ok := m[name]
	return b, ok
}

// AssemblyResolver finds the source of an assembly that a loading image
// references but the context does not hold yet.
type AssemblyResolver interface {
	ResolveAssembly(name string, version Version, culture string) (Source, error)
}

// ModuleResolver is implemented by resolvers that can also find modules
// named by ModuleRef rows.
type ModuleResolver interface {
	ResolveModule(name string) (Source, error)
}

// DirResolver probes a list of directories for <name>.dll, <name>.exe and
// <name>.md files.
type DirResolver struct {
	Dirs []string
}

// ResolveAssembly implements AssemblyResolver.
func (r DirResolver) ResolveAssembly(name string, _ Version, _ string) (Source, error) {
	return r.probe(name, ".dll", ".exe", ".md")
}

// ResolveModule implements ModuleResolver.
func (r DirResolver) ResolveModule(name string) (Source, error) {
	return r.probe(name, "", ".dll", ".netmodule")
}

func (r DirResolver) probe(name string, exts ...string) (Source, error) {
	for _, dir := range r.Dirs {
		for _, ext := range exts {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			f, err := metaroot.Open(path)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrImageNotFound, name)
}

// typeEntry is one candidate in the name index.
type typeEntry struct {
	img       *Image
	token     table.Token
	namespace string
	name      string
}

type redoPhase uint8

const (
	redoTypeRef redoPhase = iota
	redoMemberRef
)

type redoEntry struct {
	img   *Image
	token table.Token
	phase redoPhase
}

// Context owns a set of images and everything shared between them: the
// name index, interned classes, the redo list and the link graph. A
// Context is not safe for concurrent use.
type Context struct {
	opts     LoadOptions
	boundary table.Kind
	log      *zap.Logger
	resolver AssemblyResolver

	images []*Image
	names  map[string][]typeEntry

	synth         *Image
	synthetic     map[uint64][]*Class
	syntheticN    int
	syntheticSeq  map[string]int
	arrayBase     *Class
	valueTypeBase *Class
	methodInsts   map[uint64][]*Method

	redo []redoEntry

	links *linkgraph.Graph
	items []Item

	journal   lazy.Journal
	depth     int
	loadDepth int
}

// NewContext returns an empty context.
func NewContext(opts LoadOptions) (*Context, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	boundary, _ := opts.boundary()
	c := &Context{
		opts:         opts,
		boundary:     boundary,
		log:          Logger(),
		names:        make(map[string][]typeEntry),
		synthetic:    make(map[uint64][]*Class),
		syntheticSeq: make(map[string]int),
		methodInsts:  make(map[uint64][]*Method),
		links:        linkgraph.New(),
	}
	c.synth = newBuildingImage(c, SyntheticImageName)
	if len(opts.SearchPaths) > 0 {
		c.resolver = DirResolver{Dirs: opts.SearchPaths}
	}
	return c, nil
}

// WithLogger replaces the context's logger.
func (c *Context) WithLogger(l *zap.Logger) *Context {
	if l == nil {
		l = zap.NewNop()
	}
	c.log = l
	return c
}

// SetResolver sets the resolver used for dynamic linking.
func (c *Context) SetResolver(r AssemblyResolver) {
	c.resolver = r
}

// Options returns the options the context was created with.
func (c *Context) Options() LoadOptions {
	return c.opts
}

// Images returns the images in load order.
func (c *Context) Images() []*Image {
	out := make([]*Image, len(c.images))
	copy(out, c.images)
	return out
}

// Image returns the image with the given name.
func (c *Context) Image(name string) (*Image, bool) {
	for _, img := range c.images {
		if img.name == name {
			return img, true
		}
	}
	return nil, false
}

// SyntheticImage returns the image holding interned classes.
func (c *Context) SyntheticImage() *Image {
	return c.synth
}

// Close releases every image. The context must not be used afterwards.
func (c *Context) Close() error {
	for _, img := range c.images {
		img.release()
	}
	c.images = nil
	c.names = make(map[string][]typeEntry)
	c.synthetic = make(map[uint64][]*Class)
	c.methodInsts = make(map[uint64][]*Method)
	c.redo = nil
	c.items = nil
	c.links = linkgraph.New()
	return nil
}

// register gives it an identity in img.
func (c *Context) register(it Item, img *Image, tok table.Token) {
	p := it.Item()
	p.image = img
	p.token = tok
	p.id = c.links.NewID()
	c.items = append(c.items, it)
}

func (c *Context) itemByID(id linkgraph.ID) Item {
	if id == 0 || int(id) > len(c.items) {
		return nil
	}
	return c.items[id-1]
}

// record registers an undo action for the materialization in progress.
// Outside a materialization it does nothing.
func (c *Context) record(fn func()) {
	if c.depth > 0 {
		c.journal.Record(fn)
	}
}

// beginMaterialize opens a materialization scope and returns its journal
// mark.
func (c *Context) beginMaterialize() int {
	c.depth++
	return c.journal.Len()
}

// endMaterialize closes a scope. A failed scope undoes everything it
// recorded; the outermost successful scope commits.
func (c *Context) endMaterialize(mark int, err error) {
	c.depth--
	if err != nil {
		c.journal.RollbackTo(mark)
	}
	if c.depth == 0 {
		c.journal.Commit()
	}
}

func (c *Context) addName(e typeEntry) {
	key := foldName(e.namespace, e.name)
	c.names[key] = append(c.names[key], e)
}

func (c *Context) dropNames(img *Image) {
	for key, entries := range c.names {
		kept := entries[:0]
		for _, e := range entries {
			if e.img != img {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(c.names, key)
		} else {
			c.names[key] = kept
		}
	}
}

// lookupClass walks the name index. A nil img searches every image.
func (c *Context) lookupClass(img *Image, namespace, name string, fold bool) (*Class, bool) {
	for _, e := range c.names[foldName(namespace, name)] {
		if img != nil && e.img != img {
			continue
		}
		if !fold && (e.namespace != namespace || e.name != name) {
			continue
		}
		it, err := e.img.Get(e.token)
		if err != nil {
			c.log.Warn("failed to materialize indexed class",
				zap.String("image", e.img.name),
				zap.Stringer("token", e.token),
				zap.Error(err))
			continue
		}
		if cls, ok := it.(*Class); ok {
			return cls, true
		}
	}
	return nil, false
}

// LookupClass finds a top-level type definition by exact namespace and
// name across all images.
func (c *Context) LookupClass(namespace, name string) (*Class, bool) {
	return c.lookupClass(nil, namespace, name, false)
}

// LookupClassFold is LookupClass with case-insensitive matching.
func (c *Context) LookupClassFold(namespace, name string) (*Class, bool) {
	return c.lookupClass(nil, namespace, name, true)
}

func (c *Context) findAssembly(name, culture string) *Image {
	for _, img := range c.images {
		a := img.assembly
		if a == nil || a.name != name {
			continue
		}
		if culture != "" && a.culture != "" && a.culture != culture {
			continue
		}
		return img
	}
	return nil
}

func (c *Context) findModule(name string) *Image {
	for _, img := range c.images {
		if img.module != nil && img.module.name == name {
			return img
		}
		if img.name == name {
			return img
		}
	}
	return nil
}

func (c *Context) removeImage(img *Image) {
	for i, x := range c.images {
		if x == img {
			c.images = append(c.images[:i], c.images[i+1:]...)
			break
		}
	}
	c.dropNames(img)
	for _, it := range c.items {
		if p := it.Item(); p.image == img {
			c.links.Unlink(p.id)
		}
	}
	kept := c.redo[:0]
	for _, e := range c.redo {
		if e.img != img {
			kept = append(kept, e)
		}
	}
	c.redo = kept
	img.release()
}

func (c *Context) diagnose(img *Image, err error) error {
	var ue *UnresolvedError
	if c.opts.IgnoreErrors && errors.As(err, &ue) {
		img.diags = append(img.diags, err)
		c.log.Warn("leaving reference dangling",
			zap.String("image", img.name),
			zap.Stringer("token", ue.Token),
			zap.Error(err))
		return nil
	}
	return err
}

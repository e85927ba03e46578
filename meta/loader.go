package meta

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/lazy"
	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/metaroot"
)

// validatedKinds are decoded row by row after reference resolution so that
// bad indexes in them fail the load instead of a later lookup.
var validatedKinds = []table.Kind{
	table.KindInterfaceImpl,
	table.KindNestedClass,
	table.KindEventMap,
	table.KindPropertyMap,
	table.KindMethodSemantics,
	table.KindMethodImpl,
	table.KindGenericParamConstraint,
}

// LoadImage loads one image and resolves its references.
func (c *Context) LoadImage(src Source) (*Image, error) {
	imgs, err := c.LoadBatch(src)
	if err != nil {
		return nil, err
	}
	return imgs[0], nil
}

// LoadBatch loads several images that may reference each other. Every
// source is parsed and indexed before any reference is resolved, and
// references between images of the batch are settled by one redo pass at
// the end. If any image fails, none of the batch stays in the context.
func (c *Context) LoadBatch(srcs ...Source) ([]*Image, error) {
	if len(srcs) == 0 {
		return nil, nil
	}
	c.loadDepth++

	imgs := make([]*Image, 0, len(srcs))
	var errs error
	for _, src := range srcs {
		img, err := c.openImage(src)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		imgs = append(imgs, img)
	}
	if errs == nil {
		for _, img := range imgs {
			errs = multierr.Append(errs, c.linkImage(img))
		}
	}
	for _, img := range imgs {
		img.loading = false
	}

	c.loadDepth--
	if c.loadDepth == 0 {
		errs = multierr.Append(errs, c.Redo())
	}
	if errs != nil {
		for _, img := range imgs {
			c.removeImage(img)
		}
		return nil, errs
	}
	for _, img := range imgs {
		c.log.Debug("image loaded",
			zap.String("image", img.name),
			zap.Int("count", len(img.diags)))
	}
	return imgs, nil
}

// openImage parses the streams of src, registers the image as loading and
// indexes its type definitions and exported types.
func (c *Context) openImage(src Source) (*Image, error) {
	data, ok := src.Stream(metaroot.StreamTables)
	if !ok {
		if data, ok = src.Stream(metaroot.StreamTablesUnopt); !ok {
			return nil, fmt.Errorf("%w: no table stream", ErrMalformedTable)
		}
	}
	tables, err := table.ParseStream(data, table.ParseOptions{CoreBoundary: c.boundary})
	if err != nil {
		return nil, fmt.Errorf("meta: failed to parse table stream: %w", err)
	}

	img := &Image{ctx: c, mode: ModeLoaded, loading: true, tables: tables}
	if b, ok := src.Stream(metaroot.StreamStrings); ok {
		img.strings = table.NewStringHeap(b)
	}
	if b, ok := src.Stream(metaroot.StreamBlob); ok {
		img.blobs = table.NewBlobHeap(b)
	}
	if b, ok := src.Stream(metaroot.StreamGUID); ok {
		img.guids = table.NewGUIDHeap(b)
	}
	if b, ok := src.Stream(metaroot.StreamUserStrings); ok {
		img.userStrings = table.NewUserStringHeap(b)
	}
	tables.AttachHeaps(table.Heaps{
		Strings:     img.strings,
		Blobs:       img.blobs,
		GUIDs:       img.guids,
		UserStrings: img.userStrings,
	})
	for _, k := range table.Kinds() {
		img.slots[k] = lazy.NewSlots[Item](int(tables.RowCount(k)))
	}
	for _, k := range tables.Dropped {
		c.log.Warn("skipped undocumented table", zap.Stringer("kind", k))
	}

	if tables.RowCount(table.KindModule) == 0 {
		return nil, fmt.Errorf("%w: image has no Module row", ErrMalformedTable)
	}
	it, err := img.Get(table.MakeToken(table.KindModule, 1))
	if err != nil {
		return nil, err
	}
	img.module = it.(*Module)
	img.name = img.module.name
	if tables.RowCount(table.KindAssembly) > 0 {
		it, err := img.Get(table.MakeToken(table.KindAssembly, 1))
		if err != nil {
			return nil, err
		}
		img.assembly = it.(*Assembly)
		img.name = img.assembly.name
	}
	if _, dup := c.Image(img.name); dup || img.name == SyntheticImageName {
		return nil, fmt.Errorf("%w: %s", ErrImageExists, img.name)
	}

	if err := img.indexNames(); err != nil {
		return nil, err
	}
	c.images = append(c.images, img)
	c.log.Debug("image registered",
		zap.String("image", img.name),
		zap.Uint32("count", tables.RowCount(table.KindTypeDef)))
	return img, nil
}

// indexNames adds the top-level type definitions of img to the context
// name index and records its exported types.
func (img *Image) indexNames() error {
	n := img.tables.RowCount(table.KindTypeDef)
	for ord := uint32(1); ord <= n; ord++ {
		row, err := img.row(table.KindTypeDef, ord)
		if err != nil {
			return err
		}
		if row.Col(table.TypeDefFlags)&TypeVisibilityMask >= TypeNestedPublic {
			continue
		}
		name, err := img.str(row.Col(table.TypeDefName))
		if err != nil {
			return err
		}
		ns, err := img.str(row.Col(table.TypeDefNamespace))
		if err != nil {
			return err
		}
		img.ctx.addName(typeEntry{img: img, token: table.MakeToken(table.KindTypeDef, ord), namespace: ns, name: name})
	}

	n = img.tables.RowCount(table.KindExportedType)
	for ord := uint32(1); ord <= n; ord++ {
		row, err := img.row(table.KindExportedType, ord)
		if err != nil {
			return err
		}
		if row.Token(table.ExportedTypeImplementation).Kind() == table.KindExportedType {
			continue
		}
		name, err := img.str(row.Col(table.ExportedTypeName))
		if err != nil {
			return err
		}
		ns, err := img.str(row.Col(table.ExportedTypeNamespace))
		if err != nil {
			return err
		}
		if img.exported == nil {
			img.exported = make(map[string][]table.Token)
		}
		key := foldName(ns, name)
		img.exported[key] = append(img.exported[key], table.MakeToken(table.KindExportedType, ord))
	}
	return nil
}

// linkImage runs dynamic linking and reference resolution for an opened
// image. Independent failures are collected; unresolved references are
// downgraded to diagnostics in tolerant mode.
func (c *Context) linkImage(img *Image) error {
	var errs error
	if err := c.linkScopes(img); err != nil {
		return err
	}

	var local []table.Token
	n := img.Count(table.KindTypeRef)
	for ord := uint32(1); ord <= n; ord++ {
		tok := table.MakeToken(table.KindTypeRef, ord)
		st, err := img.resolveTypeRef(tok, resolveScan)
		switch {
		case err != nil:
			errs = multierr.Append(errs, c.diagnose(img, err))
		case st == refLocal:
			local = append(local, tok)
		case st == refDeferred:
			c.redo = append(c.redo, redoEntry{img: img, token: tok, phase: redoTypeRef})
		}
	}
	c.log.Debug("type references linked",
		zap.String("image", img.name),
		zap.Uint32("count", n),
		zap.Int("local", len(local)))

	for _, tok := range local {
		st, err := img.resolveTypeRef(tok, resolveLocal)
		switch {
		case err != nil:
			errs = multierr.Append(errs, c.diagnose(img, err))
		case st == refDeferred:
			c.redo = append(c.redo, redoEntry{img: img, token: tok, phase: redoTypeRef})
		}
	}

	for _, k := range validatedKinds {
		rows := img.Count(k)
		for ord := uint32(1); ord <= rows; ord++ {
			if _, err := img.row(k, ord); err != nil {
				errs = multierr.Append(errs, loadError(img, table.MakeToken(k, ord), "decode", err))
				break
			}
		}
	}

	n = img.Count(table.KindMemberRef)
	for ord := uint32(1); ord <= n; ord++ {
		tok := table.MakeToken(table.KindMemberRef, ord)
		st, err := img.resolveMemberRef(tok, resolveLocal)
		switch {
		case err != nil:
			errs = multierr.Append(errs, c.diagnose(img, err))
		case st == refDeferred:
			c.redo = append(c.redo, redoEntry{img: img, token: tok, phase: redoMemberRef})
		}
	}
	c.log.Debug("member references linked",
		zap.String("image", img.name),
		zap.Uint32("count", n))

	if c.opts.Prevalidate {
		n = img.Count(table.KindTypeDef)
		for ord := uint32(1); ord <= n; ord++ {
			if _, err := img.Get(table.MakeToken(table.KindTypeDef, ord)); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// linkScopes binds AssemblyRef and ModuleRef rows to images, loading them
// through the resolver when the context does not hold them yet.
func (c *Context) linkScopes(img *Image) error {
	var errs error
	n := img.Count(table.KindAssemblyRef)
	for ord := uint32(1); ord <= n; ord++ {
		it, err := img.Get(table.MakeToken(table.KindAssemblyRef, ord))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		ar := it.(*AssemblyRef)
		if ar.target = c.findAssembly(ar.name, ar.culture); ar.target != nil || c.resolver == nil {
			continue
		}
		src, err := c.resolver.ResolveAssembly(ar.name, ar.version, ar.culture)
		if err != nil {
			c.log.Debug("assembly not found", zap.String("image", img.name), zap.String("assembly", ar.name), zap.Error(err))
			continue
		}
		if ar.target, err = c.loadDependency(src); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("meta: failed to load %s referenced by %s: %w", ar.name, img.name, err))
		}
	}

	n = img.Count(table.KindModuleRef)
	for ord := uint32(1); ord <= n; ord++ {
		it, err := img.Get(table.MakeToken(table.KindModuleRef, ord))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		mr := it.(*ModuleRef)
		if mr.target = c.findModule(mr.name); mr.target != nil {
			continue
		}
		res, ok := c.resolver.(ModuleResolver)
		if !ok {
			continue
		}
		src, err := res.ResolveModule(mr.name)
		if err != nil {
			c.log.Debug("module not found", zap.String("image", img.name), zap.String("module", mr.name), zap.Error(err))
			continue
		}
		if mr.target, err = c.loadDependency(src); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("meta: failed to load module %s referenced by %s: %w", mr.name, img.name, err))
		}
	}
	return errs
}

func (c *Context) loadDependency(src Source) (*Image, error) {
	imgs, err := c.LoadBatch(src)
	if err != nil {
		return nil, err
	}
	return imgs[0], nil
}

// Redo retries every deferred reference once: type references first, then
// member references, whose signatures may name the types just resolved.
func (c *Context) Redo() error {
	entries := c.redo
	c.redo = nil
	var errs error
	for _, phase := range []redoPhase{redoTypeRef, redoMemberRef} {
		for _, e := range entries {
			if e.phase != phase {
				continue
			}
			var err error
			if phase == redoTypeRef {
				_, err = e.img.resolveTypeRef(e.token, resolveFinal)
			} else {
				_, err = e.img.resolveMemberRef(e.token, resolveFinal)
			}
			if err != nil {
				errs = multierr.Append(errs, c.diagnose(e.img, err))
			}
		}
	}
	if len(entries) > 0 {
		c.log.Debug("redo pass finished", zap.Int("count", len(entries)))
	}
	return errs
}

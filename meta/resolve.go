package meta

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// refState is the outcome of one reference resolution attempt.
type refState uint8

const (
	refResolved refState = iota
	refLocal             // needs the image's own name index
	refDeferred          // target image still loading
)

// resolveMode selects what an attempt may do with a reference it cannot
// settle yet.
type resolveMode uint8

const (
	resolveScan  resolveMode = iota // leave local references for later
	resolveLocal                    // resolve local references, defer loading targets
	resolveFinal                    // redo pass: no further deferral
)

// maxForwarding bounds chains of ExportedType forwarders.
const maxForwarding = 8

func (img *Image) unresolved(ref *Class, scope string) error {
	return &UnresolvedError{
		Image:     img.name,
		Token:     ref.token,
		Scope:     scope,
		Namespace: ref.namespace,
		Name:      ref.name,
	}
}

// resolveTypeRef links the TypeRef tok to the definition it names.
func (img *Image) resolveTypeRef(tok table.Token, mode resolveMode) (refState, error) {
	it, err := img.Get(tok)
	if err != nil {
		return refResolved, err
	}
	ref, ok := it.(*Class)
	if !ok {
		return refResolved, fmt.Errorf("%w: %s is not a type reference", ErrWrongKind, tok)
	}
	if IsLinked(ref) {
		return refResolved, nil
	}
	c := img.ctx

	var target *Image
	var scopeName string
	switch scope := ref.scope.(type) {
	case nil:
		// A null scope names a type exported by this image.
		if mode == resolveScan {
			return refLocal, nil
		}
		def, err := c.findExported(img, ref.namespace, ref.name, 0)
		if err != nil {
			return refResolved, err
		}
		if def == nil {
			return refResolved, img.unresolved(ref, "exported types of "+img.name)
		}
		return refResolved, Link(ref, def)
	case *Module:
		if mode == resolveScan {
			return refLocal, nil
		}
		target, scopeName = scope.image, scope.name
	case *Class:
		if mode == resolveScan {
			return refLocal, nil
		}
		return img.resolveNested(ref, scope, mode)
	case *AssemblyRef:
		target, scopeName = scope.target, scope.name
	case *ModuleRef:
		target, scopeName = scope.target, scope.name
	default:
		return refResolved, fmt.Errorf("%w: %s has a %T scope", ErrWrongKind, tok, scope)
	}

	if target == nil {
		return refResolved, img.unresolved(ref, scopeName)
	}
	if target != img && target.loading && mode != resolveFinal {
		return refDeferred, nil
	}
	def, err := c.findClass(target, ref.namespace, ref.name, 0)
	if err != nil {
		return refResolved, err
	}
	if def == nil {
		return refResolved, img.unresolved(ref, scopeName)
	}
	if err := Link(ref, def); err != nil {
		return refResolved, err
	}
	c.log.Debug("type reference resolved",
		zap.String("image", img.name),
		zap.Stringer("token", tok),
		zap.String("target", target.name))
	return refResolved, nil
}

// resolveNested resolves a reference scoped by another reference: the
// enclosing reference is resolved first, then its nested classes are
// searched by name.
func (img *Image) resolveNested(ref, enclosing *Class, mode resolveMode) (refState, error) {
	if enclosing.ref && enclosing.image == img && !IsLinked(enclosing) {
		st, err := img.resolveTypeRef(enclosing.token, mode)
		if err != nil || st != refResolved {
			return st, err
		}
	}
	encl := resolveClass(enclosing)
	if encl.ref {
		return refResolved, img.unresolved(ref, FormatClass(enclosing))
	}
	for _, n := range encl.NestedClasses() {
		if n.name == ref.name && n.namespace == ref.namespace {
			return refResolved, Link(ref, n)
		}
	}
	return refResolved, img.unresolved(ref, FormatClass(encl))
}

// findClass looks a top-level class up in target, following exported
// type forwarders.
func (c *Context) findClass(target *Image, namespace, name string, depth int) (*Class, error) {
	if cls, ok := c.lookupClass(target, namespace, name, false); ok {
		return cls, nil
	}
	return c.findExported(target, namespace, name, depth)
}

func (c *Context) findExported(img *Image, namespace, name string, depth int) (*Class, error) {
	if depth > maxForwarding {
		return nil, nil
	}
	for _, tok := range img.exported[foldName(namespace, name)] {
		it, err := img.Get(tok)
		if err != nil {
			return nil, err
		}
		et := it.(*ExportedType)
		if et.namespace != namespace || et.name != name {
			continue
		}
		var next *Image
		switch impl := et.implementation.(type) {
		case *AssemblyRef:
			next = impl.target
		case *File:
			next = c.findModule(impl.name)
		}
		if next == nil || next == img {
			continue
		}
		cls, err := c.findClass(next, namespace, name, depth+1)
		if err != nil || cls != nil {
			return cls, err
		}
	}
	return nil, nil
}

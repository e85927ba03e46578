package meta

import (
	"fmt"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// ResolveMember finds the member of cls, or of one of its ancestors, with
// the given name and signature. Interfaces search their base interfaces
// breadth-first and then System.Object. A vararg call-site signature
// matches on its fixed part.
func ResolveMember(cls *Class, name string, sig *Type) (Member, bool) {
	if cls == nil {
		return nil, false
	}
	if sig != nil && sig.IsVarArg() && sig.Sentinel != NoSentinel {
		fixed := *sig
		fixed.Params = sig.FixedParams()
		fixed.Sentinel = NoSentinel
		sig = &fixed
	}

	seen := make(map[*Class]bool)
	for k := resolveClass(cls); k != nil && !seen[k]; k = k.Parent() {
		seen[k] = true
		if m, ok := k.LookupMember(name, sig); ok {
			return m, true
		}
	}
	if !cls.IsInterface() {
		return nil, false
	}

	queue := append([]*Class(nil), resolveClass(cls).Interfaces()...)
	for len(queue) > 0 {
		k := resolveClass(queue[0])
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true
		if m, ok := k.LookupMember(name, sig); ok {
			return m, true
		}
		queue = append(queue, k.Interfaces()...)
	}
	if obj, ok := cls.ctx().LookupClass("System", "Object"); ok && !seen[obj] {
		return obj.LookupMember(name, sig)
	}
	return nil, false
}

// resolveMemberRef links the MemberRef tok to the member it names.
func (img *Image) resolveMemberRef(tok table.Token, mode resolveMode) (refState, error) {
	it, err := img.Get(tok)
	if err != nil {
		return refResolved, err
	}
	mr, ok := it.(*MemberRef)
	if !ok {
		return refResolved, fmt.Errorf("%w: %s is not a member reference", ErrWrongKind, tok)
	}
	if IsLinked(mr) {
		return refResolved, nil
	}

	var cls *Class
	switch p := mr.parent.(type) {
	case *Method:
		// A vararg call site of a method defined in this image.
		return refResolved, Link(mr, p)
	case *Class:
		cls = resolveClass(p)
		if cls.ref {
			if mode != resolveFinal {
				return refDeferred, nil
			}
			return refResolved, img.unresolvedMember(mr, FormatClass(p))
		}
	case *ModuleRef:
		if p.target == nil {
			return refResolved, img.unresolvedMember(mr, p.name)
		}
		if p.target.loading && p.target != img && mode != resolveFinal {
			return refDeferred, nil
		}
		if p.target.Count(table.KindTypeDef) == 0 {
			return refResolved, img.unresolvedMember(mr, p.name)
		}
		glob, err := p.target.Get(table.MakeToken(table.KindTypeDef, 1))
		if err != nil {
			return refResolved, err
		}
		cls = glob.(*Class)
	case *TypeSpec:
		if p.typ != nil && p.typ.Kind == TypeGenericInst {
			if def := resolveClass(p.typ.Class); def != nil && def.ref {
				if mode != resolveFinal {
					return refDeferred, nil
				}
				return refResolved, img.unresolvedMember(mr, FormatType(p.typ))
			}
		}
		if cls, err = p.Class(); err != nil {
			return refResolved, err
		}
		mr.owner = cls
	default:
		return refResolved, fmt.Errorf("%w: %s has a %T parent", ErrWrongKind, tok, mr.parent)
	}

	if mode != resolveFinal && (hasPendingRef(mr.sig) || pendingAncestor(cls)) {
		return refDeferred, nil
	}
	m, ok := ResolveMember(cls, mr.name, mr.sig)
	if !ok {
		return refResolved, img.unresolvedMember(mr, FormatClass(cls))
	}
	return refResolved, Link(mr, m)
}

func (img *Image) unresolvedMember(mr *MemberRef, scope string) error {
	return &UnresolvedError{Image: img.name, Token: mr.token, Scope: scope, Name: mr.name}
}

// hasPendingRef reports whether t names a type reference that is not
// linked yet.
func hasPendingRef(t *Type) bool {
	pending := false
	t.Walk(func(x *Type) {
		if x.Class != nil && resolveClass(x.Class).ref {
			pending = true
		}
	})
	return pending
}

// pendingAncestor reports whether a base class or interface of cls is a
// reference that is not linked yet.
func pendingAncestor(cls *Class) bool {
	seen := make(map[*Class]bool)
	queue := []*Class{cls}
	for len(queue) > 0 {
		k := resolveClass(queue[0])
		queue = queue[1:]
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		if k.ref {
			return true
		}
		b := k.built()
		if b.parent != nil {
			queue = append(queue, b.parent)
		}
		queue = append(queue, b.interfaces...)
	}
	return false
}

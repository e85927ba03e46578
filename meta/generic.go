package meta

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// Subst substitutes generic arguments for VAR and MVAR types.
type Subst struct {
	ClassArgs  []*Type
	MethodArgs []*Type
}

// Type returns t with every generic variable replaced. Variables without a
// matching argument are kept. Closed types are returned unchanged.
func (s Subst) Type(t *Type) *Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeVar:
		if int(t.Index) < len(s.ClassArgs) {
			return s.ClassArgs[t.Index]
		}
		return t
	case TypeMVar:
		if int(t.Index) < len(s.MethodArgs) {
			return s.MethodArgs[t.Index]
		}
		return t
	case TypePrimitive, TypeClass, TypeValueType:
		return t
	}
	if !t.IsOpen() {
		return t
	}
	cp := *t
	cp.Inner = s.Type(t.Inner)
	cp.Ret = s.Type(t.Ret)
	cp.Args = s.list(t.Args)
	cp.Params = s.list(t.Params)
	return &cp
}

func (s Subst) list(ts []*Type) []*Type {
	if ts == nil {
		return nil
	}
	out := make([]*Type, len(ts))
	for i, t := range ts {
		out[i] = s.Type(t)
	}
	return out
}

// Expand interns the instantiation of def with args and builds its
// members.
func (c *Context) Expand(def *Class, args []*Type) (*Class, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil generic definition", ErrWrongKind)
	}
	return c.classForType(GenericInstOf(def, args...), 0)
}

// expandInstance builds a generic instance whose definition is complete.
// The instance stays Unbuilt, to be expanded on first access, while the
// definition is an unlinked reference or still being built, or once depth
// passes the configured limit.
func (c *Context) expandInstance(inst *Class, depth int) (*Class, error) {
	sd := inst.synthetic
	if sd == nil || sd.Definition == nil || inst.state != Unbuilt {
		return inst, nil
	}
	def := resolveClass(sd.Definition)
	if def.ref || def.state == InProgress || depth > c.opts.expansionDepth() {
		c.log.Debug("deferring generic expansion",
			zap.String("class", FormatClass(inst)),
			zap.Int("depth", depth))
		return inst, nil
	}
	if n := len(def.genericParams); n > 0 && n != len(sd.Args) {
		return nil, fmt.Errorf("%w: %s takes %d type arguments, got %d",
			ErrBadSignature, FormatClass(def), n, len(sd.Args))
	}

	inst.state = InProgress
	if err := c.expandInto(inst, def, depth); err != nil {
		inst.state = Unbuilt
		inst.parent = nil
		inst.interfaces = nil
		inst.members = nil
		return nil, err
	}
	inst.state = Built
	c.record(func() {
		inst.state = Unbuilt
		inst.parent = nil
		inst.interfaces = nil
		inst.members = nil
	})
	return inst, nil
}

func (c *Context) expandInto(inst, def *Class, depth int) error {
	s := Subst{ClassArgs: inst.synthetic.Args}

	if def.parent != nil {
		p, err := c.classForType(s.Type(typeOfClass(def.parent)), depth+1)
		if err != nil {
			return err
		}
		inst.parent = p
	}
	for _, iface := range def.interfaces {
		ic, err := c.classForType(s.Type(typeOfClass(iface)), depth+1)
		if err != nil {
			return err
		}
		inst.interfaces = append(inst.interfaces, ic)
	}

	methods := make(map[*Method]*Method)
	mapped := func(m *Method) *Method {
		if m == nil {
			return nil
		}
		if nm, ok := methods[m]; ok {
			return nm
		}
		return m
	}
	var fixups []func()
	for _, m := range def.members {
		var sig *Type
		if m.Signature() != nil {
			sig = s.Type(m.Signature())
			if err := c.expandClosed(sig, depth+1); err != nil {
				return err
			}
		}
		base := MemberBase{owner: inst, name: m.Name(), flags: m.Flags(), sig: sig}
		var nm Member
		var kind table.Kind
		switch dm := m.(type) {
		case *Field:
			nm, kind = &Field{MemberBase: base}, table.KindField
		case *Method:
			im := &Method{
				MemberBase:    base,
				implFlags:     dm.implFlags,
				rva:           dm.rva,
				params:        dm.params,
				genericParams: dm.genericParams,
				definition:    dm,
			}
			methods[dm] = im
			nm, kind = im, table.KindMethodDef
		case *Event:
			e := &Event{MemberBase: base}
			fixups = append(fixups, func() {
				e.addOn, e.removeOn, e.fire = mapped(dm.addOn), mapped(dm.removeOn), mapped(dm.fire)
				for _, o := range dm.others {
					e.others = append(e.others, mapped(o))
				}
			})
			nm, kind = e, table.KindEvent
		case *Property:
			p := &Property{MemberBase: base}
			fixups = append(fixups, func() {
				p.getter, p.setter = mapped(dm.getter), mapped(dm.setter)
				for _, o := range dm.others {
					p.others = append(p.others, mapped(o))
				}
			})
			nm, kind = p, table.KindProperty
		default:
			continue
		}
		c.addSynthetic(kind, nm)
		inst.addMember(nm)
	}

	// Accessors refer to methods that may come later in member order.
	for _, fix := range fixups {
		fix()
	}
	return nil
}

// expandClosed expands every closed generic instantiation inside t.
func (c *Context) expandClosed(t *Type, depth int) error {
	var err error
	t.Walk(func(x *Type) {
		if err != nil || x.Kind != TypeGenericInst || x.IsOpen() {
			return
		}
		_, err = c.classForType(x, depth)
	})
	return err
}

func methodInstKey(def *Method, args []*Type) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(def.id))
	_, _ = d.Write(buf[:])
	for _, a := range args {
		a.hashInto(d)
	}
	return d.Sum64()
}

// InstantiateMethod returns the instance of the generic method def for
// args. Instances are cached per definition and argument list.
func (c *Context) InstantiateMethod(def *Method, args []*Type) (*Method, error) {
	if def == nil || def.sig == nil || def.sig.CallConv&CallGeneric == 0 {
		return nil, fmt.Errorf("%w: method is not generic", ErrWrongKind)
	}
	if uint32(len(args)) != def.sig.GenericParams {
		return nil, fmt.Errorf("%w: %s takes %d method type arguments, got %d",
			ErrBadSignature, def.name, def.sig.GenericParams, len(args))
	}
	key := methodInstKey(def, args)
	for _, m := range c.methodInsts[key] {
		if m.definition == def && typeListsIdentical(m.typeArgs, args) {
			return m, nil
		}
	}

	sig := *Subst{MethodArgs: args}.Type(def.sig)
	sig.CallConv &^= CallGeneric
	sig.GenericParams = 0
	if err := c.expandClosed(&sig, 1); err != nil {
		return nil, err
	}
	m := &Method{
		MemberBase: MemberBase{owner: def.owner, name: def.name, flags: def.flags, sig: &sig},
		implFlags:  def.implFlags,
		rva:        def.rva,
		params:     def.params,
		definition: def,
		typeArgs:   args,
	}
	c.addSynthetic(table.KindMethodDef, m)
	c.methodInsts[key] = append(c.methodInsts[key], m)
	c.record(func() {
		bucket := c.methodInsts[key]
		if n := len(bucket); n > 0 && bucket[n-1] == m {
			c.methodInsts[key] = bucket[:n-1]
		}
	})
	return m, nil
}

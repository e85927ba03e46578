package meta

import (
	"github.com/skdltmxn/ilmeta/internal/table"
)

// MemberKind identifies the category of a member.
type MemberKind uint8

const (
	MemberField MemberKind = iota
	MemberMethod
	MemberEvent
	MemberProperty
	MemberReference
)

func (k MemberKind) String() string {
	switch k {
	case MemberField:
		return "field"
	case MemberMethod:
		return "method"
	case MemberEvent:
		return "event"
	case MemberProperty:
		return "property"
	case MemberReference:
		return "memberref"
	default:
		return "unknown"
	}
}

// Method attribute flags from ECMA-335 II.23.1.10.
const (
	MethodAccessMask    uint32 = 0x0007
	MethodPrivate       uint32 = 0x0001
	MethodPublic        uint32 = 0x0006
	MethodStatic        uint32 = 0x0010
	MethodFinal         uint32 = 0x0020
	MethodVirtual       uint32 = 0x0040
	MethodHideBySig     uint32 = 0x0080
	MethodAbstract      uint32 = 0x0400
	MethodSpecialName   uint32 = 0x0800
	MethodRTSpecialName uint32 = 0x1000
	MethodPInvokeImpl   uint32 = 0x2000
)

// Method implementation flags.
const (
	MethodImplIL      uint16 = 0x0000
	MethodImplRuntime uint16 = 0x0003
)

// Field attribute flags from ECMA-335 II.23.1.5.
const (
	FieldPrivate    uint32 = 0x0001
	FieldPublic     uint32 = 0x0006
	FieldStatic     uint32 = 0x0010
	FieldInitOnly   uint32 = 0x0020
	FieldLiteral    uint32 = 0x0040
	FieldHasDefault uint32 = 0x8000
	FieldHasRVA     uint32 = 0x0100
)

// Method semantics from ECMA-335 II.23.1.12.
const (
	SemanticsSetter   uint16 = 0x0001
	SemanticsGetter   uint16 = 0x0002
	SemanticsOther    uint16 = 0x0004
	SemanticsAddOn    uint16 = 0x0008
	SemanticsRemoveOn uint16 = 0x0010
	SemanticsFire     uint16 = 0x0020
)

// Member is implemented by fields, methods, events, properties and member
// references.
type Member interface {
	Item
	Name() string
	Owner() *Class
	Flags() uint32
	Signature() *Type
	MemberKind() MemberKind
}

// MemberBase holds what every member has in common.
type MemberBase struct {
	ProgramItem

	owner *Class
	name  string
	flags uint32
	sig   *Type
}

// Name returns the member name.
func (m *MemberBase) Name() string { return m.name }

// Owner returns the declaring class.
func (m *MemberBase) Owner() *Class { return m.owner }

// Flags returns the member attributes.
func (m *MemberBase) Flags() uint32 { return m.flags }

// Signature returns the member signature. Fields and events carry the
// member type, methods and properties a method-shaped signature.
func (m *MemberBase) Signature() *Type { return m.sig }

// Field is a field definition.
type Field struct {
	MemberBase
}

func (f *Field) MemberKind() MemberKind { return MemberField }

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool { return f.flags&FieldStatic != 0 }

// Offset returns the explicit layout offset from the FieldLayout table.
func (f *Field) Offset() (uint32, bool, error) {
	return f.lookupColumn(table.KindFieldLayout, table.FieldLayoutField, table.FieldLayoutOffset)
}

// RVA returns the initial data RVA from the FieldRVA table.
func (f *Field) RVA() (uint32, bool, error) {
	return f.lookupColumn(table.KindFieldRVA, table.FieldRVAField, table.FieldRVARVA)
}

func (f *Field) lookupColumn(k table.Kind, keyCol, valCol int) (uint32, bool, error) {
	img := f.image
	if img.tables == nil || f.token.Kind() != table.KindField {
		return 0, false, nil
	}
	rows, err := img.tables.FindRows(k, keyCol, f.token)
	if err != nil || len(rows) == 0 {
		return 0, false, err
	}
	row, err := img.tables.DecodeRow(k, rows[0])
	if err != nil {
		return 0, false, err
	}
	return row.Col(valCol), true, nil
}

// Constant returns the default value attached to the field.
func (f *Field) Constant() (*Constant, error) {
	return findConstant(&f.ProgramItem)
}

// Method is a method definition or a method instance created by generic
// expansion or method instantiation.
type Method struct {
	MemberBase

	implFlags     uint16
	rva           uint32
	params        []*Param
	genericParams []*GenericPar

	definition *Method
	typeArgs   []*Type
}

func (m *Method) MemberKind() MemberKind { return MemberMethod }

// ImplFlags returns the implementation flags.
func (m *Method) ImplFlags() uint16 { return m.implFlags }

// RVA returns the body RVA.
func (m *Method) RVA() uint32 { return m.rva }

// Params returns the parameter rows, ordered by sequence.
func (m *Method) Params() []*Param { return m.params }

// GenericParams returns the method's own generic parameters.
func (m *Method) GenericParams() []*GenericPar { return m.genericParams }

// GenericDefinition returns the method this instance was created from.
func (m *Method) GenericDefinition() *Method { return m.definition }

// TypeArgs returns the method type arguments of a method instantiation.
func (m *Method) TypeArgs() []*Type { return m.typeArgs }

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool { return m.flags&MethodStatic != 0 }

// ImplMap returns the PInvoke mapping of the method.
func (m *Method) ImplMap() (importName string, scope *ModuleRef, ok bool, err error) {
	img := m.image
	if img.tables == nil || m.token.Kind() != table.KindMethodDef {
		return "", nil, false, nil
	}
	rows, err := img.tables.FindRows(table.KindImplMap, table.ImplMapMemberForwarded, m.token)
	if err != nil || len(rows) == 0 {
		return "", nil, false, err
	}
	row, err := img.tables.DecodeRow(table.KindImplMap, rows[0])
	if err != nil {
		return "", nil, false, err
	}
	if importName, err = img.str(row.Col(table.ImplMapImportName)); err != nil {
		return "", nil, false, err
	}
	it, err := img.Get(row.Token(table.ImplMapImportScope))
	if err != nil {
		return "", nil, false, err
	}
	mr, _ := it.(*ModuleRef)
	return importName, mr, true, nil
}

// Param is a parameter row of a method.
type Param struct {
	ProgramItem

	method   *Method
	sequence uint16
	name     string
	flags    uint16
}

// Method returns the declaring method.
func (p *Param) Method() *Method { return p.method }

// Sequence returns the parameter number. Zero is the return value.
func (p *Param) Sequence() uint16 { return p.sequence }

// Name returns the parameter name.
func (p *Param) Name() string { return p.name }

// Flags returns the parameter attributes.
func (p *Param) Flags() uint16 { return p.flags }

// Event is an event definition. Its signature is the delegate type.
type Event struct {
	MemberBase

	addOn    *Method
	removeOn *Method
	fire     *Method
	others   []*Method
}

func (e *Event) MemberKind() MemberKind { return MemberEvent }

// AddOn returns the add accessor.
func (e *Event) AddOn() *Method { return e.addOn }

// RemoveOn returns the remove accessor.
func (e *Event) RemoveOn() *Method { return e.removeOn }

// Fire returns the raise accessor.
func (e *Event) Fire() *Method { return e.fire }

func (e *Event) bind(sem uint16, m *Method) {
	switch {
	case sem&SemanticsAddOn != 0:
		e.addOn = m
	case sem&SemanticsRemoveOn != 0:
		e.removeOn = m
	case sem&SemanticsFire != 0:
		e.fire = m
	default:
		e.others = append(e.others, m)
	}
}

// Property is a property definition.
type Property struct {
	MemberBase

	getter *Method
	setter *Method
	others []*Method
}

func (p *Property) MemberKind() MemberKind { return MemberProperty }

// Getter returns the get accessor.
func (p *Property) Getter() *Method { return p.getter }

// Setter returns the set accessor.
func (p *Property) Setter() *Method { return p.setter }

// Constant returns the default value attached to the property.
func (p *Property) Constant() (*Constant, error) {
	return findConstant(&p.ProgramItem)
}

func (p *Property) bind(sem uint16, m *Method) {
	switch {
	case sem&SemanticsGetter != 0:
		p.getter = m
	case sem&SemanticsSetter != 0:
		p.setter = m
	default:
		p.others = append(p.others, m)
	}
}

// MemberRef is a reference to a member by parent, name and signature. Once
// resolved it links to the member it names.
type MemberRef struct {
	MemberBase

	parent Item
	target MemberKind
}

func (m *MemberRef) MemberKind() MemberKind { return MemberReference }

// TargetKind reports whether the reference names a field or a method.
func (m *MemberRef) TargetKind() MemberKind { return m.target }

// Parent returns the referencing parent: a class, module reference,
// method definition or type specification.
func (m *MemberRef) Parent() Item { return m.parent }

// Target returns the member the reference resolved to.
func (m *MemberRef) Target() (Member, bool) {
	it, err := Resolve(m)
	if err != nil {
		return nil, false
	}
	t, ok := it.(Member)
	if !ok || t == Member(m) {
		return nil, false
	}
	return t, true
}

// memberMatches compares a member's name and signature. Instance members
// created by expansion also match their definition's signature, which is
// what references through a TypeSpec parent carry.
func memberMatches(m Member, name string, sig *Type) bool {
	if m.Name() != name {
		return false
	}
	if sig == nil || TypesIdentical(m.Signature(), sig) {
		return true
	}
	switch mm := m.(type) {
	case *Method:
		if mm.definition != nil && TypesIdentical(mm.definition.sig, sig) {
			return true
		}
	case *Field:
		if d := fieldDefinition(mm); d != nil && TypesIdentical(d.sig, sig) {
			return true
		}
	}
	return false
}

// fieldDefinition finds the definition field an expanded field was copied
// from.
func fieldDefinition(f *Field) *Field {
	owner := f.owner
	if owner == nil || owner.synthetic == nil || owner.synthetic.Definition == nil {
		return nil
	}
	for _, m := range owner.synthetic.Definition.members {
		if df, ok := m.(*Field); ok && df.name == f.name {
			return df
		}
	}
	return nil
}

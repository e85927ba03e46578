package table

import "fmt"

// kindUnused marks a coded index tag that no table occupies.
const kindUnused Kind = 0xFF

// CodedIndex describes a tagged reference that can point into one of
// several tables. The tag occupies the low Bits bits of the stored value.
type CodedIndex struct {
	Name   string
	Bits   uint
	Tables []Kind
}

// Coded index descriptors from ECMA-335 II.24.2.6.
var (
	TypeDefOrRef = &CodedIndex{"TypeDefOrRef", 2, []Kind{
		KindTypeDef, KindTypeRef, KindTypeSpec,
	}}
	HasConstant = &CodedIndex{"HasConstant", 2, []Kind{
		KindField, KindParam, KindProperty,
	}}
	HasCustomAttribute = &CodedIndex{"HasCustomAttribute", 5, []Kind{
		KindMethodDef, KindField, KindTypeRef, KindTypeDef, KindParam,
		KindInterfaceImpl, KindMemberRef, KindModule, KindDeclSecurity,
		KindProperty, KindEvent, KindStandAloneSig, KindModuleRef,
		KindTypeSpec, KindAssembly, KindAssemblyRef, KindFile,
		KindExportedType, KindManifestResource, KindGenericParam,
		KindGenericParamConstraint, KindMethodSpec,
	}}
	HasFieldMarshal = &CodedIndex{"HasFieldMarshal", 1, []Kind{
		KindField, KindParam,
	}}
	HasDeclSecurity = &CodedIndex{"HasDeclSecurity", 2, []Kind{
		KindTypeDef, KindMethodDef, KindAssembly,
	}}
	MemberRefParent = &CodedIndex{"MemberRefParent", 3, []Kind{
		KindTypeDef, KindTypeRef, KindModuleRef, KindMethodDef, KindTypeSpec,
	}}
	HasSemantics = &CodedIndex{"HasSemantics", 1, []Kind{
		KindEvent, KindProperty,
	}}
	MethodDefOrRef = &CodedIndex{"MethodDefOrRef", 1, []Kind{
		KindMethodDef, KindMemberRef,
	}}
	MemberForwarded = &CodedIndex{"MemberForwarded", 1, []Kind{
		KindField, KindMethodDef,
	}}
	Implementation = &CodedIndex{"Implementation", 2, []Kind{
		KindFile, KindAssemblyRef, KindExportedType,
	}}
	CustomAttributeType = &CodedIndex{"CustomAttributeType", 3, []Kind{
		kindUnused, kindUnused, KindMethodDef, KindMemberRef, kindUnused,
	}}
	ResolutionScope = &CodedIndex{"ResolutionScope", 2, []Kind{
		KindModule, KindModuleRef, KindAssemblyRef, KindTypeRef,
	}}
	TypeOrMethodDef = &CodedIndex{"TypeOrMethodDef", 1, []Kind{
		KindTypeDef, KindMethodDef,
	}}
)

// Decode splits a stored value into a token. An index of zero keeps its
// tag so that the value re-encodes to the same bytes.
func (c *CodedIndex) Decode(v uint32) (Token, error) {
	tag := v & (1<<c.Bits - 1)
	if int(tag) >= len(c.Tables) || c.Tables[tag] == kindUnused {
		return 0, fmt.Errorf("%w: %s tag %d is not used", ErrMalformedTable, c.Name, tag)
	}
	index := v >> c.Bits
	if index > MaxOrdinal {
		return 0, fmt.Errorf("%w: %s index %d exceeds token range", ErrMalformedTable, c.Name, index)
	}
	return MakeToken(c.Tables[tag], index), nil
}

// Encode packs a token into the stored representation.
func (c *CodedIndex) Encode(t Token) (uint32, error) {
	tag, ok := c.Tag(t.Kind())
	if !ok {
		if t.IsNil() {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %s cannot reference %s", ErrMalformedTable, c.Name, t.Kind())
	}
	return t.Ordinal()<<c.Bits | tag, nil
}

// Tag returns the tag value used for kind k.
func (c *CodedIndex) Tag(k Kind) (uint32, bool) {
	for i, tk := range c.Tables {
		if tk == k && tk != kindUnused {
			return uint32(i), true
		}
	}
	return 0, false
}

// Accepts reports whether the coded index can reference kind k.
func (c *CodedIndex) Accepts(k Kind) bool {
	_, ok := c.Tag(k)
	return ok
}

// wide reports whether the index needs 4 bytes for the given row counts.
func (c *CodedIndex) wide(counts *[MaxKinds]uint32) bool {
	limit := uint32(0xFFFF) >> c.Bits
	for _, k := range c.Tables {
		if k != kindUnused && counts[k] > limit {
			return true
		}
	}
	return false
}

// Package table implements the ECMA-335 token table codec: table kinds,
// tokens, column schemas, per-image column widths, the #~ stream header,
// row decoding and encoding, and ownership range searches.
package table

import "fmt"

// Kind identifies a metadata table. It is also the high byte of a Token.
type Kind uint8

// Table kinds defined by ECMA-335 partition II, chapter 22.
const (
	KindModule                 Kind = 0x00
	KindTypeRef                Kind = 0x01
	KindTypeDef                Kind = 0x02
	KindField                  Kind = 0x04
	KindMethodDef              Kind = 0x06
	KindParam                  Kind = 0x08
	KindInterfaceImpl          Kind = 0x09
	KindMemberRef              Kind = 0x0A
	KindConstant               Kind = 0x0B
	KindCustomAttribute        Kind = 0x0C
	KindFieldMarshal           Kind = 0x0D
	KindDeclSecurity           Kind = 0x0E
	KindClassLayout            Kind = 0x0F
	KindFieldLayout            Kind = 0x10
	KindStandAloneSig          Kind = 0x11
	KindEventMap               Kind = 0x12
	KindEvent                  Kind = 0x14
	KindPropertyMap            Kind = 0x15
	KindProperty               Kind = 0x17
	KindMethodSemantics        Kind = 0x18
	KindMethodImpl             Kind = 0x19
	KindModuleRef              Kind = 0x1A
	KindTypeSpec               Kind = 0x1B
	KindImplMap                Kind = 0x1C
	KindFieldRVA               Kind = 0x1D
	KindAssembly               Kind = 0x20
	KindAssemblyProcessor      Kind = 0x21
	KindAssemblyOS             Kind = 0x22
	KindAssemblyRef            Kind = 0x23
	KindAssemblyRefProcessor   Kind = 0x24
	KindAssemblyRefOS          Kind = 0x25
	KindFile                   Kind = 0x26
	KindExportedType           Kind = 0x27
	KindManifestResource       Kind = 0x28
	KindNestedClass            Kind = 0x29
	KindGenericParam           Kind = 0x2A
	KindMethodSpec             Kind = 0x2B
	KindGenericParamConstraint Kind = 0x2C
)

// MaxKinds is the number of table kinds addressable by the presence bitmap.
const MaxKinds = 64

// DefaultCoreBoundary is the last table kind whose undocumented presence is
// fatal. Undocumented kinds above it are dropped.
const DefaultCoreBoundary = KindNestedClass

var kindNames = [MaxKinds]string{
	KindModule:                 "Module",
	KindTypeRef:                "TypeRef",
	KindTypeDef:                "TypeDef",
	0x03:                       "FieldPtr",
	KindField:                  "Field",
	0x05:                       "MethodPtr",
	KindMethodDef:              "MethodDef",
	0x07:                       "ParamPtr",
	KindParam:                  "Param",
	KindInterfaceImpl:          "InterfaceImpl",
	KindMemberRef:              "MemberRef",
	KindConstant:               "Constant",
	KindCustomAttribute:        "CustomAttribute",
	KindFieldMarshal:           "FieldMarshal",
	KindDeclSecurity:           "DeclSecurity",
	KindClassLayout:            "ClassLayout",
	KindFieldLayout:            "FieldLayout",
	KindStandAloneSig:          "StandAloneSig",
	KindEventMap:               "EventMap",
	0x13:                       "EventPtr",
	KindEvent:                  "Event",
	KindPropertyMap:            "PropertyMap",
	0x16:                       "PropertyPtr",
	KindProperty:               "Property",
	KindMethodSemantics:        "MethodSemantics",
	KindMethodImpl:             "MethodImpl",
	KindModuleRef:              "ModuleRef",
	KindTypeSpec:               "TypeSpec",
	KindImplMap:                "ImplMap",
	KindFieldRVA:               "FieldRVA",
	0x1E:                       "ENCLog",
	0x1F:                       "ENCMap",
	KindAssembly:               "Assembly",
	KindAssemblyProcessor:      "AssemblyProcessor",
	KindAssemblyOS:             "AssemblyOS",
	KindAssemblyRef:            "AssemblyRef",
	KindAssemblyRefProcessor:   "AssemblyRefProcessor",
	KindAssemblyRefOS:          "AssemblyRefOS",
	KindFile:                   "File",
	KindExportedType:           "ExportedType",
	KindManifestResource:       "ManifestResource",
	KindNestedClass:            "NestedClass",
	KindGenericParam:           "GenericParam",
	KindMethodSpec:             "MethodSpec",
	KindGenericParamConstraint: "GenericParamConstraint",
}

// String returns the table name.
func (k Kind) String() string {
	if int(k) < MaxKinds && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Table(0x%02X)", uint8(k))
}

// Documented reports whether the codec knows the column layout of k.
func (k Kind) Documented() bool {
	return int(k) < MaxKinds && schemas[k] != nil
}

// Kinds returns every documented kind in table order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, 40)
	for k := 0; k < MaxKinds; k++ {
		if schemas[k] != nil {
			kinds = append(kinds, Kind(k))
		}
	}
	return kinds
}

// KindByName looks up a table kind by its name.
func KindByName(name string) (Kind, bool) {
	for k := 0; k < MaxKinds; k++ {
		if schemas[k] != nil && kindNames[k] == name {
			return Kind(k), true
		}
	}
	return 0, false
}

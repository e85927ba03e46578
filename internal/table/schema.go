package table

// ColumnType is the storage class of a table column.
type ColumnType uint8

const (
	ColU16    ColumnType = iota // fixed 2-byte integer
	ColU32                      // fixed 4-byte integer
	ColString                   // #Strings heap offset
	ColBlob                     // #Blob heap offset, decodes to three values
	ColGUID                     // 1-based #GUID heap index
	ColTable                    // row index into one table
	ColList                     // first row of a run in one table
	ColCoded                    // tagged index into one of several tables
)

// Column describes one column of a table.
type Column struct {
	Name   string
	Type   ColumnType
	Target Kind
	Coded  *CodedIndex
}

// Schema is the static column list of a table kind.
type Schema struct {
	Kind    Kind
	Columns []Column

	// value offset of each column within a decoded Row
	offsets []int
	values  int
}

// NumValues returns the number of decoded values in a row of this schema.
func (s *Schema) NumValues() int {
	return s.values
}

// ColumnIndex returns the column with the given name, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// SchemaFor returns the schema for k, or nil for undocumented kinds.
func SchemaFor(k Kind) *Schema {
	if int(k) >= MaxKinds {
		return nil
	}
	return schemas[k]
}

func u16(name string) Column { return Column{Name: name, Type: ColU16} }
func u32(name string) Column { return Column{Name: name, Type: ColU32} }
func str(name string) Column { return Column{Name: name, Type: ColString} }
func blob(name string) Column { return Column{Name: name, Type: ColBlob} }
func guid(name string) Column { return Column{Name: name, Type: ColGUID} }
func tbl(name string, k Kind) Column {
	return Column{Name: name, Type: ColTable, Target: k}
}
func list(name string, k Kind) Column {
	return Column{Name: name, Type: ColList, Target: k}
}
func coded(name string, c *CodedIndex) Column {
	return Column{Name: name, Type: ColCoded, Coded: c}
}

// Column indexes, per table.
const (
	ModuleGeneration = iota
	ModuleName
	ModuleMvid
	ModuleEncID
	ModuleEncBaseID
)

const (
	TypeRefScope = iota
	TypeRefName
	TypeRefNamespace
)

const (
	TypeDefFlags = iota
	TypeDefName
	TypeDefNamespace
	TypeDefExtends
	TypeDefFieldList
	TypeDefMethodList
)

const (
	FieldFlags = iota
	FieldName
	FieldSignature
)

const (
	MethodDefRVA = iota
	MethodDefImplFlags
	MethodDefFlags
	MethodDefName
	MethodDefSignature
	MethodDefParamList
)

const (
	ParamFlags = iota
	ParamSequence
	ParamName
)

const (
	InterfaceImplClass = iota
	InterfaceImplInterface
)

const (
	MemberRefClass = iota
	MemberRefName
	MemberRefSignature
)

const (
	ConstantType = iota
	ConstantParent
	ConstantValue
)

const (
	CustomAttributeParent = iota
	CustomAttributeConstructor
	CustomAttributeValue
)

const (
	FieldMarshalParent = iota
	FieldMarshalNativeType
)

const (
	DeclSecurityAction = iota
	DeclSecurityParent
	DeclSecurityPermissionSet
)

const (
	ClassLayoutPackingSize = iota
	ClassLayoutClassSize
	ClassLayoutParent
)

const (
	FieldLayoutOffset = iota
	FieldLayoutField
)

const (
	StandAloneSigSignature = iota
)

const (
	EventMapParent = iota
	EventMapEventList
)

const (
	EventFlags = iota
	EventName
	EventType
)

const (
	PropertyMapParent = iota
	PropertyMapPropertyList
)

const (
	PropertyFlags = iota
	PropertyName
	PropertyType
)

const (
	MethodSemanticsSemantics = iota
	MethodSemanticsMethod
	MethodSemanticsAssociation
)

const (
	MethodImplClass = iota
	MethodImplBody
	MethodImplDeclaration
)

const (
	ModuleRefName = iota
)

const (
	TypeSpecSignature = iota
)

const (
	ImplMapFlags = iota
	ImplMapMemberForwarded
	ImplMapImportName
	ImplMapImportScope
)

const (
	FieldRVARVA = iota
	FieldRVAField
)

const (
	AssemblyHashAlgID = iota
	AssemblyMajorVersion
	AssemblyMinorVersion
	AssemblyBuildNumber
	AssemblyRevisionNumber
	AssemblyFlags
	AssemblyPublicKey
	AssemblyName
	AssemblyCulture
)

const (
	AssemblyRefMajorVersion = iota
	AssemblyRefMinorVersion
	AssemblyRefBuildNumber
	AssemblyRefRevisionNumber
	AssemblyRefFlags
	AssemblyRefPublicKeyOrToken
	AssemblyRefName
	AssemblyRefCulture
	AssemblyRefHashValue
)

const (
	FileFlags = iota
	FileName
	FileHashValue
)

const (
	ExportedTypeFlags = iota
	ExportedTypeTypeDefID
	ExportedTypeName
	ExportedTypeNamespace
	ExportedTypeImplementation
)

const (
	ManifestResourceOffset = iota
	ManifestResourceFlags
	ManifestResourceName
	ManifestResourceImplementation
)

const (
	NestedClassNested = iota
	NestedClassEnclosing
)

const (
	GenericParamNumber = iota
	GenericParamFlags
	GenericParamOwner
	GenericParamName
)

const (
	MethodSpecMethod = iota
	MethodSpecInstantiation
)

const (
	GenericParamConstraintOwner = iota
	GenericParamConstraintConstraint
)

var schemas [MaxKinds]*Schema

func define(k Kind, cols ...Column) {
	s := &Schema{Kind: k, Columns: cols, offsets: make([]int, len(cols))}
	for i, c := range cols {
		s.offsets[i] = s.values
		if c.Type == ColBlob {
			s.values += 3
		} else {
			s.values++
		}
	}
	schemas[k] = s
}

func init() {
	define(KindModule, u16("Generation"), str("Name"), guid("Mvid"), guid("EncId"), guid("EncBaseId"))
	define(KindTypeRef, coded("ResolutionScope", ResolutionScope), str("TypeName"), str("TypeNamespace"))
	define(KindTypeDef, u32("Flags"), str("TypeName"), str("TypeNamespace"),
		coded("Extends", TypeDefOrRef), list("FieldList", KindField), list("MethodList", KindMethodDef))
	define(KindField, u16("Flags"), str("Name"), blob("Signature"))
	define(KindMethodDef, u32("RVA"), u16("ImplFlags"), u16("Flags"), str("Name"), blob("Signature"),
		list("ParamList", KindParam))
	define(KindParam, u16("Flags"), u16("Sequence"), str("Name"))
	define(KindInterfaceImpl, tbl("Class", KindTypeDef), coded("Interface", TypeDefOrRef))
	define(KindMemberRef, coded("Class", MemberRefParent), str("Name"), blob("Signature"))
	define(KindConstant, u16("Type"), coded("Parent", HasConstant), blob("Value"))
	define(KindCustomAttribute, coded("Parent", HasCustomAttribute), coded("Type", CustomAttributeType),
		blob("Value"))
	define(KindFieldMarshal, coded("Parent", HasFieldMarshal), blob("NativeType"))
	define(KindDeclSecurity, u16("Action"), coded("Parent", HasDeclSecurity), blob("PermissionSet"))
	define(KindClassLayout, u16("PackingSize"), u32("ClassSize"), tbl("Parent", KindTypeDef))
	define(KindFieldLayout, u32("Offset"), tbl("Field", KindField))
	define(KindStandAloneSig, blob("Signature"))
	define(KindEventMap, tbl("Parent", KindTypeDef), list("EventList", KindEvent))
	define(KindEvent, u16("EventFlags"), str("Name"), coded("EventType", TypeDefOrRef))
	define(KindPropertyMap, tbl("Parent", KindTypeDef), list("PropertyList", KindProperty))
	define(KindProperty, u16("Flags"), str("Name"), blob("Type"))
	define(KindMethodSemantics, u16("Semantics"), tbl("Method", KindMethodDef),
		coded("Association", HasSemantics))
	define(KindMethodImpl, tbl("Class", KindTypeDef), coded("MethodBody", MethodDefOrRef),
		coded("MethodDeclaration", MethodDefOrRef))
	define(KindModuleRef, str("Name"))
	define(KindTypeSpec, blob("Signature"))
	define(KindImplMap, u16("MappingFlags"), coded("MemberForwarded", MemberForwarded),
		str("ImportName"), tbl("ImportScope", KindModuleRef))
	define(KindFieldRVA, u32("RVA"), tbl("Field", KindField))
	define(KindAssembly, u32("HashAlgId"), u16("MajorVersion"), u16("MinorVersion"), u16("BuildNumber"),
		u16("RevisionNumber"), u32("Flags"), blob("PublicKey"), str("Name"), str("Culture"))
	define(KindAssemblyProcessor, u32("Processor"))
	define(KindAssemblyOS, u32("OSPlatformID"), u32("OSMajorVersion"), u32("OSMinorVersion"))
	define(KindAssemblyRef, u16("MajorVersion"), u16("MinorVersion"), u16("BuildNumber"),
		u16("RevisionNumber"), u32("Flags"), blob("PublicKeyOrToken"), str("Name"), str("Culture"),
		blob("HashValue"))
	define(KindAssemblyRefProcessor, u32("Processor"), tbl("AssemblyRef", KindAssemblyRef))
	define(KindAssemblyRefOS, u32("OSPlatformId"), u32("OSMajorVersion"), u32("OSMinorVersion"),
		tbl("AssemblyRef", KindAssemblyRef))
	define(KindFile, u32("Flags"), str("Name"), blob("HashValue"))
	define(KindExportedType, u32("Flags"), u32("TypeDefId"), str("TypeName"), str("TypeNamespace"),
		coded("Implementation", Implementation))
	define(KindManifestResource, u32("Offset"), u32("Flags"), str("Name"),
		coded("Implementation", Implementation))
	define(KindNestedClass, tbl("NestedClass", KindTypeDef), tbl("EnclosingClass", KindTypeDef))
	define(KindGenericParam, u16("Number"), u16("Flags"), coded("Owner", TypeOrMethodDef), str("Name"))
	define(KindMethodSpec, coded("Method", MethodDefOrRef), blob("Instantiation"))
	define(KindGenericParamConstraint, tbl("Owner", KindGenericParam), coded("Constraint", TypeDefOrRef))
}

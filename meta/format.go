package meta

import (
	"fmt"
	"strings"
)

var primitiveNames = map[ElementType]string{
	ElemVoid:       "void",
	ElemBoolean:    "bool",
	ElemChar:       "char",
	ElemI1:         "int8",
	ElemU1:         "uint8",
	ElemI2:         "int16",
	ElemU2:         "uint16",
	ElemI4:         "int32",
	ElemU4:         "uint32",
	ElemI8:         "int64",
	ElemU8:         "uint64",
	ElemR4:         "float32",
	ElemR8:         "float64",
	ElemString:     "string",
	ElemTypedByRef: "typedref",
	ElemI:          "native int",
	ElemU:          "native uint",
	ElemObject:     "object",
}

var callConvNames = map[CallConv]string{
	CallC:        "unmanaged cdecl ",
	CallStdCall:  "unmanaged stdcall ",
	CallThisCall: "unmanaged thiscall ",
	CallFastCall: "unmanaged fastcall ",
	CallVarArg:   "vararg ",
}

func (t *Type) String() string {
	return FormatType(t)
}

// FormatType renders t in ILAsm syntax.
func FormatType(t *Type) string {
	var b strings.Builder
	writeType(&b, t)
	return b.String()
}

// FormatClass renders the full name of c, using '/' between nested names.
// Synthetic classes render as the type they stand for.
func FormatClass(c *Class) string {
	if c == nil {
		return "<nil>"
	}
	if c.synthetic != nil {
		return FormatType(c.synthetic.Type)
	}
	var b strings.Builder
	writeClassName(&b, c)
	return b.String()
}

func writeClassName(b *strings.Builder, c *Class) {
	if c.enclosing != nil {
		writeClassName(b, c.enclosing)
		b.WriteByte('/')
	} else if c.namespace != "" {
		b.WriteString(c.namespace)
		b.WriteByte('.')
	}
	b.WriteString(c.name)
}

func writeType(b *strings.Builder, t *Type) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case TypePrimitive:
		if name, ok := primitiveNames[t.Elem]; ok {
			b.WriteString(name)
		} else {
			fmt.Fprintf(b, "<0x%02x>", uint8(t.Elem))
		}
	case TypeClass:
		b.WriteString("class ")
		b.WriteString(FormatClass(t.Class))
	case TypeValueType:
		b.WriteString("valuetype ")
		b.WriteString(FormatClass(t.Class))
	case TypeSZArray:
		writeType(b, t.Inner)
		b.WriteString("[]")
	case TypeArray:
		writeType(b, t.Inner)
		b.WriteByte('[')
		for i := 0; i < t.Rank; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			hasLo := i < len(t.LoBounds)
			hasSize := i < len(t.Sizes)
			switch {
			case hasLo && hasSize:
				fmt.Fprintf(b, "%d...%d", t.LoBounds[i], int64(t.LoBounds[i])+int64(t.Sizes[i])-1)
			case hasLo:
				fmt.Fprintf(b, "%d...", t.LoBounds[i])
			case hasSize:
				fmt.Fprintf(b, "%d", t.Sizes[i])
			}
		}
		b.WriteByte(']')
	case TypePtr:
		writeType(b, t.Inner)
		b.WriteByte('*')
	case TypeByRef:
		writeType(b, t.Inner)
		b.WriteByte('&')
	case TypePinned:
		writeType(b, t.Inner)
		b.WriteString(" pinned")
	case TypeModifier:
		writeType(b, t.Inner)
		if t.Required {
			b.WriteString(" modreq(")
		} else {
			b.WriteString(" modopt(")
		}
		b.WriteString(FormatClass(t.Class))
		b.WriteByte(')')
	case TypeVar:
		fmt.Fprintf(b, "!%d", t.Index)
	case TypeMVar:
		fmt.Fprintf(b, "!!%d", t.Index)
	case TypeGenericInst:
		b.WriteString(FormatClass(t.Class))
		b.WriteByte('<')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			writeType(b, a)
		}
		b.WriteByte('>')
	case TypeFnPtr:
		b.WriteString("method ")
		writeMethodSig(b, t.Inner, "*")
	case TypeMethod:
		writeMethodSig(b, t, "")
	case TypeLocals:
		b.WriteString("locals (")
		for i, p := range t.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			writeType(b, p)
		}
		b.WriteByte(')')
	}
}

func writeMethodSig(b *strings.Builder, t *Type, name string) {
	if t == nil || t.Kind != TypeMethod {
		writeType(b, t)
		return
	}
	if t.CallConv&CallHasThis != 0 {
		b.WriteString("instance ")
	}
	if t.CallConv&CallExplicitThis != 0 {
		b.WriteString("explicit ")
	}
	b.WriteString(callConvNames[t.CallConv.Kind()])
	writeType(b, t.Ret)
	b.WriteByte(' ')
	b.WriteString(name)
	if t.GenericParams > 0 {
		fmt.Fprintf(b, "<%d>", t.GenericParams)
	}
	b.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if i == t.Sentinel {
			b.WriteString("..., ")
		}
		writeType(b, p)
	}
	if t.Sentinel >= 0 && t.Sentinel == len(t.Params) {
		if len(t.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
	}
	b.WriteByte(')')
}

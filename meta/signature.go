package meta

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/skdltmxn/ilmeta/internal/stream"
	"github.com/skdltmxn/ilmeta/internal/table"
)

// maxSignatureDepth bounds type nesting inside one signature blob.
const maxSignatureDepth = 20

// Leading bytes of non-method signatures.
const (
	sigField      = 0x06
	sigLocals     = 0x07
	sigProperty   = 0x08
	sigMethodInst = 0x0A
)

// typeDefOrRefTags maps the two low bits of an encoded class token.
var typeDefOrRefTags = [...]table.Kind{table.KindTypeDef, table.KindTypeRef, table.KindTypeSpec}

type sigParser struct {
	r     *stream.Reader
	img   *Image
	depth int
}

func newSigParser(img *Image, blob []byte) *sigParser {
	return &sigParser{r: stream.NewReader(blob), img: img}
}

func (p *sigParser) fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrBadSignature, fmt.Sprintf(format, args...), p.r.Offset())
}

func (p *sigParser) u8() (uint8, error) {
	b, err := p.r.ReadU8()
	if err != nil {
		return 0, p.fail("truncated")
	}
	return b, nil
}

func (p *sigParser) peek() (uint8, error) {
	b, err := p.r.PeekU8()
	if err != nil {
		return 0, p.fail("truncated")
	}
	return b, nil
}

func (p *sigParser) compressed() (uint32, error) {
	v, err := p.r.ReadCompressedU32()
	if err != nil {
		return 0, p.fail("%v", err)
	}
	return v, nil
}

func (p *sigParser) count() (int, error) {
	v, err := p.compressed()
	if err != nil {
		return 0, err
	}
	if int64(v) > int64(p.r.Remaining())+1 {
		return 0, p.fail("count %d exceeds blob", v)
	}
	return int(v), nil
}

// token decodes a TypeDefOrRefOrSpecEncoded value.
func (p *sigParser) token() (table.Token, error) {
	v, err := p.compressed()
	if err != nil {
		return 0, err
	}
	tag := v & 0x3
	if int(tag) >= len(typeDefOrRefTags) {
		return 0, p.fail("bad type token tag %d", tag)
	}
	return table.MakeToken(typeDefOrRefTags[tag], v>>2), nil
}

func (p *sigParser) class(tok table.Token) (*Class, error) {
	if p.img == nil {
		return nil, p.fail("type token %s without an image", tok)
	}
	it, err := p.img.Get(tok)
	if err != nil {
		return nil, err
	}
	if c, ok := it.(*Class); ok {
		return c, nil
	}
	return nil, p.fail("%s is not a class", tok)
}

// classOrSpec resolves a CLASS or VALUETYPE operand. TypeSpec operands
// contribute the specified type itself.
func (p *sigParser) classOrSpec(valueType bool) (*Type, error) {
	tok, err := p.token()
	if err != nil {
		return nil, err
	}
	if tok.Kind() == table.KindTypeSpec {
		if p.img == nil {
			return nil, p.fail("type token %s without an image", tok)
		}
		it, err := p.img.Get(tok)
		if err != nil {
			return nil, err
		}
		spec, ok := it.(*TypeSpec)
		if !ok {
			return nil, p.fail("%s is not a type specification", tok)
		}
		return spec.typ, nil
	}
	c, err := p.class(tok)
	if err != nil {
		return nil, err
	}
	if valueType {
		return ValueTypeOf(c), nil
	}
	return ClassType(c), nil
}

func (p *sigParser) typ() (*Type, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxSignatureDepth {
		return nil, p.fail("nesting deeper than %d", maxSignatureDepth)
	}

	b, err := p.u8()
	if err != nil {
		return nil, err
	}
	e := ElementType(b)
	if e.IsPrimitive() {
		return Primitive(e), nil
	}

	switch e {
	case ElemClass, ElemValueType:
		return p.classOrSpec(e == ElemValueType)
	case ElemSZArray:
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return SZArrayOf(inner), nil
	case ElemArray:
		return p.array()
	case ElemPtr:
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return PtrTo(inner), nil
	case ElemByRef:
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return ByRefTo(inner), nil
	case ElemPinned:
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return PinnedOf(inner), nil
	case ElemCModReqd, ElemCModOpt:
		tok, err := p.token()
		if err != nil {
			return nil, err
		}
		mod, err := p.class(tok)
		if err != nil {
			return nil, err
		}
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return Modified(e == ElemCModReqd, mod, inner), nil
	case ElemVar, ElemMVar:
		n, err := p.compressed()
		if err != nil {
			return nil, err
		}
		if e == ElemVar {
			return VarType(n), nil
		}
		return MVarType(n), nil
	case ElemGenericInst:
		return p.genericInst()
	case ElemFnPtr:
		sig, err := p.method()
		if err != nil {
			return nil, err
		}
		return FnPtrTo(sig), nil
	}
	return nil, p.fail("unexpected element type 0x%02X", b)
}

func (p *sigParser) array() (*Type, error) {
	inner, err := p.typ()
	if err != nil {
		return nil, err
	}
	rank, err := p.count()
	if err != nil {
		return nil, err
	}
	if rank == 0 {
		return nil, p.fail("array of rank 0")
	}
	n, err := p.count()
	if err != nil {
		return nil, err
	}
	var sizes []uint32
	for range n {
		s, err := p.compressed()
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, s)
	}
	if n, err = p.count(); err != nil {
		return nil, err
	}
	var lo []int32
	for range n {
		b, err := p.r.ReadCompressedI32()
		if err != nil {
			return nil, p.fail("%v", err)
		}
		lo = append(lo, b)
	}
	return ArrayOf(inner, rank, sizes, lo), nil
}

func (p *sigParser) genericInst() (*Type, error) {
	b, err := p.u8()
	if err != nil {
		return nil, err
	}
	if e := ElementType(b); e != ElemClass && e != ElemValueType {
		return nil, p.fail("generic instantiation of element type 0x%02X", b)
	}
	tok, err := p.token()
	if err != nil {
		return nil, err
	}
	if tok.Kind() == table.KindTypeSpec {
		return nil, p.fail("generic instantiation of a type specification")
	}
	def, err := p.class(tok)
	if err != nil {
		return nil, err
	}
	n, err := p.count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, p.fail("generic instantiation without arguments")
	}
	args := make([]*Type, 0, n)
	for range n {
		a, err := p.typ()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return GenericInstOf(def, args...), nil
}

// method parses a method, property or function pointer signature after
// nothing has been consumed.
func (p *sigParser) method() (*Type, error) {
	b, err := p.u8()
	if err != nil {
		return nil, err
	}
	cc := CallConv(b)
	switch cc.Kind() {
	case sigField, sigLocals, sigMethodInst:
		return nil, p.fail("calling convention 0x%02X is not a method", b)
	}
	t := &Type{Kind: TypeMethod, CallConv: cc, Sentinel: NoSentinel}
	if cc&CallGeneric != 0 {
		if t.GenericParams, err = p.compressed(); err != nil {
			return nil, err
		}
	}
	n, err := p.count()
	if err != nil {
		return nil, err
	}
	if t.Ret, err = p.typ(); err != nil {
		return nil, err
	}
	t.Params = make([]*Type, 0, n)
	for i := range n {
		b, err := p.peek()
		if err != nil {
			return nil, err
		}
		if ElementType(b) == ElemSentinel {
			if t.Sentinel != NoSentinel {
				return nil, p.fail("second sentinel")
			}
			_, _ = p.u8()
			t.Sentinel = i
		}
		param, err := p.typ()
		if err != nil {
			return nil, err
		}
		t.Params = append(t.Params, param)
	}
	return t, nil
}

func (p *sigParser) done(t *Type) (*Type, error) {
	if p.r.Remaining() != 0 {
		return nil, p.fail("%d trailing bytes", p.r.Remaining())
	}
	return t, nil
}

// ParseMethodSig parses a MethodDefSig or MethodRefSig. Class tokens are
// resolved in img.
func ParseMethodSig(img *Image, blob []byte) (*Type, error) {
	p := newSigParser(img, blob)
	t, err := p.method()
	if err != nil {
		return nil, err
	}
	return p.done(t)
}

// ParsePropertySig parses a PropertySig.
func ParsePropertySig(img *Image, blob []byte) (*Type, error) {
	p := newSigParser(img, blob)
	b, err := p.peek()
	if err != nil {
		return nil, err
	}
	if CallConv(b).Kind() != sigProperty {
		return nil, p.fail("property signature starts with 0x%02X", b)
	}
	t, err := p.method()
	if err != nil {
		return nil, err
	}
	return p.done(t)
}

// ParseFieldSig parses a FieldSig and returns the field type.
func ParseFieldSig(img *Image, blob []byte) (*Type, error) {
	p := newSigParser(img, blob)
	b, err := p.u8()
	if err != nil {
		return nil, err
	}
	if b != sigField {
		return nil, p.fail("field signature starts with 0x%02X", b)
	}
	t, err := p.typ()
	if err != nil {
		return nil, err
	}
	return p.done(t)
}

// ParseMemberRefSig parses the signature of a MemberRef, which is a field
// or method signature depending on its first byte.
func ParseMemberRefSig(img *Image, blob []byte) (*Type, MemberKind, error) {
	if len(blob) > 0 && blob[0] == sigField {
		t, err := ParseFieldSig(img, blob)
		return t, MemberField, err
	}
	t, err := ParseMethodSig(img, blob)
	return t, MemberMethod, err
}

// ParseLocalsSig parses a LocalVarSig.
func ParseLocalsSig(img *Image, blob []byte) (*Type, error) {
	p := newSigParser(img, blob)
	b, err := p.u8()
	if err != nil {
		return nil, err
	}
	if b != sigLocals {
		return nil, p.fail("locals signature starts with 0x%02X", b)
	}
	n, err := p.count()
	if err != nil {
		return nil, err
	}
	locals := make([]*Type, 0, n)
	for range n {
		l, err := p.typ()
		if err != nil {
			return nil, err
		}
		locals = append(locals, l)
	}
	return p.done(LocalsSig(locals...))
}

// ParseTypeSpec parses a TypeSpec blob.
func ParseTypeSpec(img *Image, blob []byte) (*Type, error) {
	p := newSigParser(img, blob)
	t, err := p.typ()
	if err != nil {
		return nil, err
	}
	return p.done(t)
}

// ParseMethodSpec parses a MethodSpec instantiation blob.
func ParseMethodSpec(img *Image, blob []byte) ([]*Type, error) {
	p := newSigParser(img, blob)
	b, err := p.u8()
	if err != nil {
		return nil, err
	}
	if b != sigMethodInst {
		return nil, p.fail("method instantiation starts with 0x%02X", b)
	}
	n, err := p.count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, p.fail("method instantiation without arguments")
	}
	args := make([]*Type, 0, n)
	for range n {
		a, err := p.typ()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	if _, err := p.done(nil); err != nil {
		return nil, err
	}
	return args, nil
}

// ParseStandAloneSig parses a StandAloneSig blob: locals or a call-site
// method signature.
func ParseStandAloneSig(img *Image, blob []byte) (*Type, error) {
	if len(blob) > 0 && blob[0] == sigLocals {
		return ParseLocalsSig(img, blob)
	}
	return ParseMethodSig(img, blob)
}

// paramCount narrows a parameter count for the signature writer.
func paramCount(n int) (uint32, error) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, fmt.Errorf("%w: %d parameters", ErrBadSignature, n)
	}
	return v, nil
}

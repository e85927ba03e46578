package meta

import (
	"fmt"

	"github.com/skdltmxn/ilmeta/internal/stream"
	"github.com/skdltmxn/ilmeta/internal/table"
)

// TokenFunc maps a class to the TypeDef, TypeRef or TypeSpec token that
// names it in the image a signature is written for.
type TokenFunc func(c *Class) (table.Token, error)

type sigWriter struct {
	w       *stream.Writer
	tokenOf TokenFunc
	depth   int
}

func newSigWriter(tokenOf TokenFunc) *sigWriter {
	return &sigWriter{w: stream.NewWriter(16), tokenOf: tokenOf}
}

func (s *sigWriter) compressed(v uint32) error {
	if err := s.w.WriteCompressedU32(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

func (s *sigWriter) count(n int) error {
	v, err := paramCount(n)
	if err != nil {
		return err
	}
	return s.compressed(v)
}

func (s *sigWriter) token(c *Class) error {
	tok, err := s.tokenOf(c)
	if err != nil {
		return err
	}
	var tag uint32
	switch tok.Kind() {
	case table.KindTypeDef:
		tag = 0
	case table.KindTypeRef:
		tag = 1
	case table.KindTypeSpec:
		tag = 2
	default:
		return fmt.Errorf("%w: %s cannot name a class in a signature", ErrBadSignature, tok)
	}
	if tok.Ordinal() > 0x07FFFFFF {
		return fmt.Errorf("%w: %s does not fit a signature", ErrBadSignature, tok)
	}
	return s.compressed(tok.Ordinal()<<2 | tag)
}

func (s *sigWriter) typ(t *Type) error {
	s.depth++
	defer func() { s.depth-- }()
	if s.depth > maxSignatureDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrBadSignature, maxSignatureDepth)
	}
	if t == nil {
		return fmt.Errorf("%w: missing type", ErrBadSignature)
	}

	switch t.Kind {
	case TypePrimitive:
		s.w.WriteU8(uint8(t.Elem))
	case TypeClass, TypeValueType:
		c := resolveClass(t.Class)
		if c == nil {
			return fmt.Errorf("%w: class type without a class", ErrBadSignature)
		}
		if c.synthetic != nil {
			return s.typ(c.synthetic.Type)
		}
		if t.Kind == TypeValueType {
			s.w.WriteU8(uint8(ElemValueType))
		} else {
			s.w.WriteU8(uint8(ElemClass))
		}
		return s.token(t.Class)
	case TypeSZArray:
		s.w.WriteU8(uint8(ElemSZArray))
		return s.typ(t.Inner)
	case TypeArray:
		s.w.WriteU8(uint8(ElemArray))
		if err := s.typ(t.Inner); err != nil {
			return err
		}
		return s.shape(t)
	case TypePtr:
		s.w.WriteU8(uint8(ElemPtr))
		return s.typ(t.Inner)
	case TypeByRef:
		s.w.WriteU8(uint8(ElemByRef))
		return s.typ(t.Inner)
	case TypePinned:
		s.w.WriteU8(uint8(ElemPinned))
		return s.typ(t.Inner)
	case TypeModifier:
		if t.Required {
			s.w.WriteU8(uint8(ElemCModReqd))
		} else {
			s.w.WriteU8(uint8(ElemCModOpt))
		}
		if err := s.token(t.Class); err != nil {
			return err
		}
		return s.typ(t.Inner)
	case TypeVar, TypeMVar:
		if t.Kind == TypeVar {
			s.w.WriteU8(uint8(ElemVar))
		} else {
			s.w.WriteU8(uint8(ElemMVar))
		}
		return s.compressed(t.Index)
	case TypeGenericInst:
		s.w.WriteU8(uint8(ElemGenericInst))
		if t.Class.IsValueType() {
			s.w.WriteU8(uint8(ElemValueType))
		} else {
			s.w.WriteU8(uint8(ElemClass))
		}
		if err := s.token(t.Class); err != nil {
			return err
		}
		if err := s.count(len(t.Args)); err != nil {
			return err
		}
		for _, a := range t.Args {
			if err := s.typ(a); err != nil {
				return err
			}
		}
	case TypeFnPtr:
		s.w.WriteU8(uint8(ElemFnPtr))
		return s.method(t.Inner)
	default:
		return fmt.Errorf("%w: %s is not a type", ErrBadSignature, t.Kind)
	}
	return nil
}

func (s *sigWriter) shape(t *Type) error {
	if err := s.count(t.Rank); err != nil {
		return err
	}
	if err := s.count(len(t.Sizes)); err != nil {
		return err
	}
	for _, v := range t.Sizes {
		if err := s.compressed(v); err != nil {
			return err
		}
	}
	if err := s.count(len(t.LoBounds)); err != nil {
		return err
	}
	for _, v := range t.LoBounds {
		if err := s.w.WriteCompressedI32(v); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
	}
	return nil
}

func (s *sigWriter) method(t *Type) error {
	if t == nil || t.Kind != TypeMethod {
		return fmt.Errorf("%w: not a method signature", ErrBadSignature)
	}
	s.w.WriteU8(uint8(t.CallConv))
	if t.CallConv&CallGeneric != 0 {
		if err := s.compressed(t.GenericParams); err != nil {
			return err
		}
	}
	if err := s.count(len(t.Params)); err != nil {
		return err
	}
	if err := s.typ(t.Ret); err != nil {
		return err
	}
	for i, p := range t.Params {
		if i == t.Sentinel {
			s.w.WriteU8(uint8(ElemSentinel))
		}
		if err := s.typ(p); err != nil {
			return err
		}
	}
	return nil
}

// EncodeMethodSig encodes a method or property signature.
func EncodeMethodSig(t *Type, tokenOf TokenFunc) ([]byte, error) {
	s := newSigWriter(tokenOf)
	if err := s.method(t); err != nil {
		return nil, err
	}
	return s.w.Bytes(), nil
}

// EncodeFieldSig encodes a FieldSig for a field of type t.
func EncodeFieldSig(t *Type, tokenOf TokenFunc) ([]byte, error) {
	s := newSigWriter(tokenOf)
	s.w.WriteU8(sigField)
	if err := s.typ(t); err != nil {
		return nil, err
	}
	return s.w.Bytes(), nil
}

// EncodeLocalsSig encodes a LocalVarSig.
func EncodeLocalsSig(t *Type, tokenOf TokenFunc) ([]byte, error) {
	if t == nil || t.Kind != TypeLocals {
		return nil, fmt.Errorf("%w: not a locals signature", ErrBadSignature)
	}
	s := newSigWriter(tokenOf)
	s.w.WriteU8(sigLocals)
	if err := s.count(len(t.Params)); err != nil {
		return nil, err
	}
	for _, l := range t.Params {
		if err := s.typ(l); err != nil {
			return nil, err
		}
	}
	return s.w.Bytes(), nil
}

// EncodeTypeSpec encodes a TypeSpec blob.
func EncodeTypeSpec(t *Type, tokenOf TokenFunc) ([]byte, error) {
	s := newSigWriter(tokenOf)
	if err := s.typ(t); err != nil {
		return nil, err
	}
	return s.w.Bytes(), nil
}

// EncodeMethodSpec encodes a MethodSpec instantiation blob.
func EncodeMethodSpec(args []*Type, tokenOf TokenFunc) ([]byte, error) {
	s := newSigWriter(tokenOf)
	s.w.WriteU8(sigMethodInst)
	if err := s.count(len(args)); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := s.typ(a); err != nil {
			return nil, err
		}
	}
	return s.w.Bytes(), nil
}

// encodeMemberSig encodes the signature blob of a member: a FieldSig for
// fields and a method-shaped signature otherwise.
func encodeMemberSig(kind MemberKind, t *Type, tokenOf TokenFunc) ([]byte, error) {
	if kind == MemberField {
		return EncodeFieldSig(t, tokenOf)
	}
	return EncodeMethodSig(t, tokenOf)
}

package table

import (
	"fmt"
	"sort"
)

// FindOwner returns the ordinal of the parent row of kind parent whose
// child run, stored as a first-child list column col, contains child.
// The last parent's run extends to the end of the child table; a parent
// whose first child is one past the end owns nothing.
func (s *Stream) FindOwner(parent Kind, col int, child uint32) (uint32, error) {
	sc := SchemaFor(parent)
	if sc == nil || col < 0 || col >= len(sc.Columns) || sc.Columns[col].Type != ColList {
		return 0, fmt.Errorf("table: %s column %d is not a list column", parent, col)
	}
	children := s.RowCount(sc.Columns[col].Target)
	return findOwner(s.RowCount(parent), children, s.IsSorted(parent), func(p uint32) (uint32, error) {
		return s.firstChild(parent, col, p, children)
	}, child)
}

// ChildRange returns the half-open run [first, end) of child ordinals
// owned by parent row ordinal.
func (s *Stream) ChildRange(parent Kind, col int, ordinal uint32) (first, end uint32, err error) {
	sc := SchemaFor(parent)
	if sc == nil || col < 0 || col >= len(sc.Columns) || sc.Columns[col].Type != ColList {
		return 0, 0, fmt.Errorf("table: %s column %d is not a list column", parent, col)
	}
	children := s.RowCount(sc.Columns[col].Target)
	return childRange(s.RowCount(parent), children, func(p uint32) (uint32, error) {
		return s.firstChild(parent, col, p, children)
	}, ordinal)
}

// firstChild reads a list column as a raw ordinal, mapping the "no
// children" sentinel back to children+1.
func (s *Stream) firstChild(parent Kind, col int, p, children uint32) (uint32, error) {
	row, err := s.DecodeRow(parent, p)
	if err != nil {
		return 0, err
	}
	first := row.Token(col).Ordinal()
	if first == 0 {
		first = children + 1
	}
	return first, nil
}

func childRange(parents, children uint32, first func(uint32) (uint32, error), ordinal uint32) (uint32, uint32, error) {
	if ordinal == 0 || ordinal > parents {
		return 0, 0, fmt.Errorf("%w: parent %d of %d", ErrRowOutOfRange, ordinal, parents)
	}
	start, err := first(ordinal)
	if err != nil {
		return 0, 0, err
	}
	end := children + 1
	if ordinal < parents {
		if end, err = first(ordinal + 1); err != nil {
			return 0, 0, err
		}
	}
	if end < start {
		return 0, 0, fmt.Errorf("%w: child run of row %d ends before it starts", ErrMalformedTable, ordinal)
	}
	return start, end, nil
}

func findOwner(parents, children uint32, sorted bool, first func(uint32) (uint32, error), child uint32) (uint32, error) {
	if child == 0 || child > children {
		return 0, fmt.Errorf("%w: child %d of %d", ErrRowOutOfRange, child, children)
	}

	if sorted {
		// last parent whose first child is <= child
		var searchErr error
		n := sort.Search(int(parents), func(i int) bool {
			if searchErr != nil {
				return true
			}
			f, err := first(uint32(i) + 1)
			if err != nil {
				searchErr = err
				return true
			}
			return f > child
		})
		if searchErr != nil {
			return 0, searchErr
		}
		if n == 0 {
			return 0, fmt.Errorf("%w for child %d", ErrNoOwner, child)
		}
		return uint32(n), nil
	}

	for p := uint32(1); p <= parents; p++ {
		start, end, err := childRange(parents, children, first, p)
		if err != nil {
			return 0, err
		}
		if child >= start && child < end {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w for child %d", ErrNoOwner, child)
}

// keyColumns names the column each sortable table is ordered by.
var keyColumns = map[Kind]int{
	KindInterfaceImpl:          InterfaceImplClass,
	KindConstant:               ConstantParent,
	KindCustomAttribute:        CustomAttributeParent,
	KindFieldMarshal:           FieldMarshalParent,
	KindDeclSecurity:           DeclSecurityParent,
	KindClassLayout:            ClassLayoutParent,
	KindFieldLayout:            FieldLayoutField,
	KindMethodSemantics:        MethodSemanticsAssociation,
	KindMethodImpl:             MethodImplClass,
	KindImplMap:                ImplMapMemberForwarded,
	KindFieldRVA:               FieldRVAField,
	KindNestedClass:            NestedClassNested,
	KindGenericParam:           GenericParamOwner,
	KindGenericParamConstraint: GenericParamConstraintOwner,
}

// FindRows returns the ordinals of every row of kind k whose reference
// column col equals target. Sorted tables searched by their key column
// are binary searched; anything else is scanned.
func (s *Stream) FindRows(k Kind, col int, target Token) ([]uint32, error) {
	sc := SchemaFor(k)
	if sc == nil || col < 0 || col >= len(sc.Columns) {
		return nil, fmt.Errorf("table: %s has no column %d", k, col)
	}
	key, err := sortKey(sc.Columns[col], target)
	if err != nil {
		return nil, err
	}

	count := s.RowCount(k)
	raw := func(ordinal uint32) (uint32, error) {
		row, err := s.DecodeRow(k, ordinal)
		if err != nil {
			return 0, err
		}
		return sortKey(sc.Columns[col], row.Token(col))
	}

	var rows []uint32
	if kc, ok := keyColumns[k]; !ok || kc != col || !s.IsSorted(k) {
		for i := uint32(1); i <= count; i++ {
			v, err := raw(i)
			if err != nil {
				return nil, err
			}
			if v == key {
				rows = append(rows, i)
			}
		}
		return rows, nil
	}

	var searchErr error
	lo := sort.Search(int(count), func(i int) bool {
		if searchErr != nil {
			return true
		}
		v, err := raw(uint32(i) + 1)
		if err != nil {
			searchErr = err
			return true
		}
		return v >= key
	})
	if searchErr != nil {
		return nil, searchErr
	}
	for i := uint32(lo) + 1; i <= count; i++ {
		v, err := raw(i)
		if err != nil {
			return nil, err
		}
		if v != key {
			break
		}
		rows = append(rows, i)
	}
	return rows, nil
}

// sortKey returns the stored value of a reference, which is what sorted
// tables are ordered by.
func sortKey(c Column, t Token) (uint32, error) {
	switch c.Type {
	case ColCoded:
		return c.Coded.Encode(t)
	case ColTable, ColList:
		return t.Ordinal(), nil
	default:
		return uint32(t), nil
	}
}

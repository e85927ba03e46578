package meta

// Attribute is a custom attribute attached to an item.
type Attribute struct {
	ProgramItem

	owner Item
	ctor  Item
	value []byte
}

// Owner returns the item the attribute is attached to.
func (a *Attribute) Owner() Item { return a.owner }

// Constructor returns the attribute constructor: a method definition or a
// member reference.
func (a *Attribute) Constructor() Item { return a.ctor }

// Value returns the raw attribute value blob.
func (a *Attribute) Value() []byte { return a.value }

// Class returns the attribute class: the owner of the constructor.
func (a *Attribute) Class() *Class {
	switch c := a.ctor.(type) {
	case *Method:
		return c.owner
	case *MemberRef:
		if c.owner != nil {
			return resolveClass(c.owner)
		}
	}
	return nil
}

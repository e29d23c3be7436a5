package formula

import (
	"fmt"
	"strings"
)

// Category classifies an argument by the data axis it varies over.
type Category int

// Argument categories.
const (
	Vi Category = iota // row-indexed: varies over the M axis
	Vj                 // column-indexed: varies over the N axis
	Pm                 // parameter: constant across both axes
)

// String returns the category's name in the declaration grammar.
func (c Category) String() string {
	switch c {
	case Vi:
		return "Vi"
	case Vj:
		return "Vj"
	case Pm:
		return "Pm"
	default:
		return "Unknown"
	}
}

// Binding associates a formula symbol with its category and inner dimension.
// Slot is the position of the matching data buffer at invocation time.
type Binding struct {
	Name string
	Cat  Category
	Dim  int
	Slot int
}

// ArgTable holds the declared arguments of a formula in declaration order.
type ArgTable struct {
	ordered []*Binding
	byName  map[string]*Binding
}

// NewArgTable creates an empty argument table.
func NewArgTable() *ArgTable {
	return &ArgTable{byName: make(map[string]*Binding)}
}

// Add declares a new argument. Names must be unique and dimensions positive.
func (t *ArgTable) Add(name string, cat Category, dim int) (*Binding, error) {
	if _, dup := t.byName[name]; dup {
		return nil, &BindingError{Symbol: name, Msg: "declared more than once"}
	}
	if dim <= 0 {
		return nil, &BindingError{Symbol: name, Msg: fmt.Sprintf("dimension must be a positive integer, got %d", dim)}
	}
	b := &Binding{Name: name, Cat: cat, Dim: dim, Slot: len(t.ordered)}
	t.ordered = append(t.ordered, b)
	t.byName[name] = b
	return b, nil
}

// Lookup returns the binding for a symbol, or nil if undeclared.
func (t *ArgTable) Lookup(name string) *Binding {
	return t.byName[name]
}

// At returns the binding at the given slot.
func (t *ArgTable) At(slot int) *Binding {
	return t.ordered[slot]
}

// Len returns the number of declared arguments.
func (t *ArgTable) Len() int {
	return len(t.ordered)
}

// All returns the bindings in declaration order.
func (t *ArgTable) All() []*Binding {
	return t.ordered
}

// Clone returns a deep copy of the table. Used when deriving gradient
// operators, which extend the original declarations with an adjoint.
func (t *ArgTable) Clone() *ArgTable {
	clone := NewArgTable()
	for _, b := range t.ordered {
		nb := *b
		clone.ordered = append(clone.ordered, &nb)
		clone.byName[nb.Name] = &nb
	}
	return clone
}

// ParseArg parses a single declaration of the form "name = Category(dim)",
// e.g. "x = Vi(3)", and adds it to the table.
func (t *ArgTable) ParseArg(decl string) (*Binding, error) {
	lhs, rhs, ok := strings.Cut(decl, "=")
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("declaration %q must have the form name = Category(dim)", decl)}
	}
	name := strings.TrimSpace(lhs)
	if !isIdentifier(name) {
		return nil, &BindingError{Symbol: name, Msg: "name must be an identifier"}
	}

	rhs = strings.TrimSpace(rhs)
	open := strings.IndexByte(rhs, '(')
	if open < 0 || !strings.HasSuffix(rhs, ")") {
		return nil, &ParseError{Msg: fmt.Sprintf("declaration %q must have the form name = Category(dim)", decl)}
	}
	var cat Category
	switch rhs[:open] {
	case "Vi":
		cat = Vi
	case "Vj":
		cat = Vj
	case "Pm":
		cat = Pm
	default:
		return nil, &BindingError{Symbol: name, Msg: fmt.Sprintf("unknown category %q (want Vi, Vj or Pm)", rhs[:open])}
	}

	var dim int
	if _, err := fmt.Sscanf(rhs[open+1:len(rhs)-1], "%d", &dim); err != nil {
		return nil, &BindingError{Symbol: name, Msg: fmt.Sprintf("dimension %q is not an integer", rhs[open+1:len(rhs)-1])}
	}
	return t.Add(name, cat, dim)
}

// ParseArgs builds an argument table from a list of declarations.
func ParseArgs(decls []string) (*ArgTable, error) {
	t := NewArgTable()
	for _, d := range decls {
		if _, err := t.ParseArg(d); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		digit := r >= '0' && r <= '9'
		if !letter && !(digit && i > 0) {
			return false
		}
	}
	return true
}

package dg

import (
	"github.com/pkg/errors"
)

// Schema is the static attribute table of a node type together with its dependency edges. It is
// built once per node type and shared by every instance; per-instance values live in the graph.
type Schema struct {
	attrs     []Attribute
	index     map[string]attrRef
	affects   map[string][]string
	affectors map[string][]string
}

// attrRef points at an attribute, or at one child of a vector attribute when child >= 0.
type attrRef struct {
	attr  int
	child int
}

// NewSchema builds a schema from the attribute list. It panics on duplicate names, since schemas are
// declared at init time.
func NewSchema(attrs ...Attribute) *Schema {
	s := &Schema{
		index:     map[string]attrRef{},
		affects:   map[string][]string{},
		affectors: map[string][]string{},
	}
	add := func(name string, ref attrRef) {
		if name == "" {
			return
		}
		if _, ok := s.index[name]; ok {
			panic(errors.Errorf("duplicate attribute name %q", name))
		}
		s.index[name] = ref
	}
	for i, a := range attrs {
		s.attrs = append(s.attrs, a)
		add(a.Name, attrRef{i, -1})
		add(a.Short, attrRef{i, -1})
		if a.Type == AttrVector {
			for c := range vectorAxes {
				add(a.ChildName(c), attrRef{i, c})
				add(a.ChildShort(c), attrRef{i, c})
			}
		}
	}
	return s
}

// Affects declares that a change to input dirties each of outputs. It panics on unknown names.
func (s *Schema) Affects(input string, outputs ...string) *Schema {
	in := s.mustRoot(input)
	for _, o := range outputs {
		out := s.mustRoot(o)
		s.affects[in] = append(s.affects[in], out)
		s.affectors[out] = append(s.affectors[out], in)
	}
	return s
}

func (s *Schema) mustRoot(name string) string {
	a, _, ok := s.Lookup(name)
	if !ok {
		panic(errors.Errorf("unknown attribute %q", name))
	}
	return a.Name
}

// Attributes returns the declared attributes in declaration order.
func (s *Schema) Attributes() []Attribute {
	out := make([]Attribute, len(s.attrs))
	copy(out, s.attrs)
	return out
}

// Lookup resolves a long, short or child name. child is -1 unless name refers to a vector child.
func (s *Schema) Lookup(name string) (attr Attribute, child int, ok bool) {
	ref, ok := s.index[name]
	if !ok {
		return Attribute{}, -1, false
	}
	return s.attrs[ref.attr], ref.child, true
}

// Root returns the long name of the attribute that name refers to, resolving children to their parent.
// It returns the empty string for unknown names.
func (s *Schema) Root(name string) string {
	a, _, ok := s.Lookup(name)
	if !ok {
		return ""
	}
	return a.Name
}

// Affected returns the outputs that a change to input dirties.
func (s *Schema) Affected(input string) []string {
	return s.affects[s.Root(input)]
}

// Affectors returns the inputs declared as affecting output.
func (s *Schema) Affectors(output string) []string {
	return s.affectors[s.Root(output)]
}

// computed reports whether the attribute's value is produced by Compute.
func (s *Schema) computed(attr string) bool {
	return len(s.affectors[attr]) > 0
}

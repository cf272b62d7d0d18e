package types

import (
	"sort"
	"sync"

	"github.com/wippyai/subscript/errors"
)

// Builder assembles type definitions before validation. It is not safe for
// concurrent use; Build produces the immutable Registry.
type Builder struct {
	defs   map[string]*TypeDef
	custom map[string]bool
}

// NewBuilder returns a builder seeded with the primitive types.
func NewBuilder() *Builder {
	b := &Builder{
		defs:   make(map[string]*TypeDef),
		custom: make(map[string]bool),
	}
	for p := PrimBool; p <= PrimEra; p++ {
		b.Define(p.String(), Primitive(p))
	}
	b.Define("()", Tuple())
	b.Define("String", Alias("str"))
	b.Define("ExtrinsicEra", Alias("Era"))
	b.Define("BitVec", BitSequence(1, false))
	return b
}

// IsBuiltin reports whether name is one of the definitions every builder
// starts with.
func IsBuiltin(name string) bool {
	switch name {
	case "()", "String", "ExtrinsicEra", "BitVec":
		return true
	}
	for p := PrimBool; p <= PrimEra; p++ {
		if p.String() == name {
			return true
		}
	}
	return false
}

// Define registers an auto-derived definition. Names already set by
// Override keep their custom definition.
func (b *Builder) Define(name string, def *TypeDef) {
	if b.custom[name] {
		return
	}
	d := *def
	d.Name = name
	b.defs[name] = &d
}

// Override registers a custom definition that takes precedence over any
// auto-derived definition of the same name, before or after.
func (b *Builder) Override(name string, def *TypeDef) {
	d := *def
	d.Name = name
	b.defs[name] = &d
	b.custom[name] = true
}

// Has reports whether name is defined.
func (b *Builder) Has(name string) bool {
	_, ok := b.defs[name]
	return ok
}

// Lookup returns the current definition for name.
func (b *Builder) Lookup(name string) (*TypeDef, bool) {
	d, ok := b.defs[name]
	return d, ok
}

// IsCustom reports whether name was set by Override.
func (b *Builder) IsCustom(name string) bool {
	return b.custom[name]
}

// Parse registers every composite in a type expression and returns the
// canonical name referring to it. Plain names are returned as written and
// are checked by Build.
func (b *Builder) Parse(typeExpr string) (string, error) {
	e, err := parseExpr(typeExpr)
	if err != nil {
		return "", err
	}
	return register(b, e)
}

func (b *Builder) has(name string) bool          { return b.Has(name) }
func (b *Builder) put(name string, def *TypeDef) { b.Define(name, def) }

// Build validates the definitions and returns an immutable Registry.
// Every referenced name must resolve and every type must have a finite
// encoding; all violations are reported in one SchemaError.
func (b *Builder) Build() (*Registry, error) {
	if err := validate(b.defs); err != nil {
		return nil, err
	}
	defs := make(map[string]*TypeDef, len(b.defs))
	for k, v := range b.defs {
		defs[k] = v
	}
	return &Registry{defs: defs}, nil
}

// Registry maps type names to descriptors. It is immutable after Build
// and safe for concurrent use.
type Registry struct {
	defs map[string]*TypeDef

	// derived caches composites of registered types that were first
	// named at resolve time, e.g. Vec<AccountId> when metadata only
	// declares AccountId.
	derived sync.Map
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	return len(r.defs)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*TypeDef, bool) {
	if d, ok := r.defs[name]; ok {
		return d, true
	}
	if d, ok := r.derived.Load(name); ok {
		return d.(*TypeDef), true
	}
	return nil, false
}

// Resolve returns the descriptor for name. Composite spellings of
// registered types are derived on first use.
func (r *Registry) Resolve(name string) (*TypeDef, error) {
	if d, ok := r.Lookup(name); ok {
		return d, nil
	}

	e, err := parseExpr(name)
	if err != nil {
		ue := errors.UnknownType(name)
		ue.Cause = err
		return nil, ue
	}
	s := &deriveSink{r: r, tmp: make(map[string]*TypeDef)}
	canon, err := register(s, e)
	if err != nil {
		ue := errors.UnknownType(name)
		ue.Cause = err
		return nil, ue
	}
	for _, d := range s.tmp {
		for _, c := range d.Children() {
			if !s.has(c) {
				return nil, errors.UnknownType(c)
			}
		}
	}
	d, ok := s.lookup(canon)
	if !ok {
		return nil, errors.UnknownType(name)
	}
	for n, td := range s.tmp {
		r.derived.LoadOrStore(n, td)
	}
	if canon != name {
		r.derived.LoadOrStore(name, d)
	}
	return d, nil
}

// Underlying resolves name and follows aliases to a concrete descriptor.
func (r *Registry) Underlying(name string) (*TypeDef, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	for i := 0; d.Kind == KindAlias; i++ {
		if i > len(r.defs) {
			return nil, errors.Schema(errors.KindCycle, "alias chain does not terminate", nil)
		}
		if d, err = r.Resolve(d.Elem); err != nil {
			return nil, err
		}
	}
	return d, nil
}

type deriveSink struct {
	r   *Registry
	tmp map[string]*TypeDef
}

func (s *deriveSink) lookup(name string) (*TypeDef, bool) {
	if d, ok := s.tmp[name]; ok {
		return d, true
	}
	return s.r.Lookup(name)
}

func (s *deriveSink) has(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

func (s *deriveSink) put(name string, def *TypeDef) {
	d := *def
	d.Name = name
	s.tmp[name] = &d
}

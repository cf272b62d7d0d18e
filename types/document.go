package types

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/subscript/errors"
)

type entryKind uint8

const (
	entryAlias entryKind = iota
	entryStruct
	entryEnum
	entrySet
)

type docEntry struct {
	name     string
	kind     entryKind
	alias    string
	fields   []Field
	variants []Variant
	width    int
}

// Document is a custom-types document: type names mapped to structural
// definitions in document order. Field and variant types are type
// expressions.
type Document struct {
	entries []docEntry
}

// NewDocument returns an empty document for programmatic construction.
func NewDocument() *Document {
	return &Document{}
}

// Alias adds name as another spelling of typeExpr.
func (d *Document) Alias(name, typeExpr string) *Document {
	d.entries = append(d.entries, docEntry{name: name, kind: entryAlias, alias: typeExpr})
	return d
}

// Struct adds a struct with fields in the given order.
func (d *Document) Struct(name string, fields ...Field) *Document {
	d.entries = append(d.entries, docEntry{name: name, kind: entryStruct, fields: fields})
	return d
}

// Enum adds an enum. Variants with an empty Type carry no payload.
func (d *Document) Enum(name string, variants ...Variant) *Document {
	d.entries = append(d.entries, docEntry{name: name, kind: entryEnum, variants: variants})
	return d
}

// Len returns the number of entries.
func (d *Document) Len() int {
	return len(d.entries)
}

// Names returns entry names in document order.
func (d *Document) Names() []string {
	out := make([]string, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.name
	}
	return out
}

// LoadDocument parses a JSON or YAML custom-types document of the form
// {"types": {Name: Definition}} or the bare inner mapping. A definition is
// a type expression string, {"_enum": [names]}, {"_enum": {Name: Type}},
// {"_set": {...}}, or an object of field name to type expression.
func LoadDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.ParseFailed("types document", err)
	}
	n := &root
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return NewDocument(), nil
		}
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil, docError("", "document root must be a mapping")
	}
	if v := mappingValue(n, "types"); v != nil {
		if v.Kind != yaml.MappingNode {
			return nil, docError("types", "must be a mapping")
		}
		n = v
	}

	doc := NewDocument()
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		e, err := parseEntry(name, n.Content[i+1])
		if err != nil {
			return nil, err
		}
		doc.entries = append(doc.entries, e)
	}
	return doc, nil
}

func parseEntry(name string, v *yaml.Node) (docEntry, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		if v.ShortTag() == "!!null" || v.Value == "" {
			return docEntry{name: name, kind: entryAlias, alias: "()"}, nil
		}
		return docEntry{name: name, kind: entryAlias, alias: v.Value}, nil
	case yaml.MappingNode:
	default:
		return docEntry{}, docError(name, "definition must be a string or a mapping")
	}

	if en := mappingValue(v, "_enum"); en != nil {
		variants, err := parseVariants(name, en)
		if err != nil {
			return docEntry{}, err
		}
		return docEntry{name: name, kind: entryEnum, variants: variants}, nil
	}
	if set := mappingValue(v, "_set"); set != nil {
		width := 1
		if bl := mappingValue(set, "_bitLength"); bl != nil {
			bits, err := strconv.Atoi(bl.Value)
			if err != nil || (bits != 8 && bits != 16 && bits != 32 && bits != 64) {
				return docEntry{}, docError(name, "invalid _bitLength %q", bl.Value)
			}
			width = bits / 8
		}
		return docEntry{name: name, kind: entrySet, width: width}, nil
	}

	e := docEntry{name: name, kind: entryStruct}
	for i := 0; i+1 < len(v.Content); i += 2 {
		field, ft := v.Content[i].Value, v.Content[i+1]
		if strings.HasPrefix(field, "_") {
			if field == "_alias" {
				continue
			}
			return docEntry{}, docError(name, "unsupported directive %q", field)
		}
		if ft.Kind != yaml.ScalarNode {
			return docEntry{}, docError(name, "field %q must name a type", field)
		}
		e.fields = append(e.fields, Field{Name: field, Type: ft.Value})
	}
	return e, nil
}

func parseVariants(name string, en *yaml.Node) ([]Variant, error) {
	switch en.Kind {
	case yaml.SequenceNode:
		out := make([]Variant, len(en.Content))
		for i, c := range en.Content {
			out[i] = Variant{Index: uint32(i), Name: c.Value}
		}
		return out, nil
	case yaml.MappingNode:
		var out []Variant
		next := uint32(0)
		for i := 0; i+1 < len(en.Content); i += 2 {
			vn, vt := en.Content[i].Value, en.Content[i+1]
			if vt.Kind != yaml.ScalarNode {
				return nil, docError(name, "variant %q must name a type", vn)
			}
			v := Variant{Index: next, Name: vn}
			switch {
			case vt.ShortTag() == "!!int":
				idx, err := strconv.ParseUint(vt.Value, 10, 32)
				if err != nil {
					return nil, docError(name, "variant %q has invalid index %q", vn, vt.Value)
				}
				v.Index = uint32(idx)
			case vt.ShortTag() == "!!null":
			default:
				v.Type = vt.Value
			}
			out = append(out, v)
			next = v.Index + 1
		}
		return out, nil
	}
	return nil, docError(name, "_enum must be a list or a mapping")
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func docError(name, format string, args ...any) error {
	b := errors.New(errors.PhaseParse, errors.KindInvalidData).Detail(format, args...)
	if name != "" {
		b = b.TypeName(name)
	}
	return b.Build()
}

// Merge applies a document as custom definitions; they override
// auto-derived definitions of the same name.
func (b *Builder) Merge(d *Document) error {
	return b.apply(d, b.Override)
}

// MergeDefaults applies a document as auto-derived definitions.
func (b *Builder) MergeDefaults(d *Document) error {
	return b.apply(d, b.Define)
}

func (b *Builder) apply(d *Document, set func(string, *TypeDef)) error {
	if d == nil {
		return nil
	}
	for _, e := range d.entries {
		def, err := b.entryDef(e)
		if err != nil {
			return fmt.Errorf("type %s: %w", e.name, err)
		}
		set(e.name, def)
	}
	return nil
}

func (b *Builder) entryDef(e docEntry) (*TypeDef, error) {
	switch e.kind {
	case entryAlias:
		target, err := b.Parse(e.alias)
		if err != nil {
			return nil, err
		}
		return Alias(target), nil
	case entrySet:
		return Primitive([...]Prim{1: PrimU8, 2: PrimU16, 4: PrimU32, 8: PrimU64}[e.width]), nil
	case entryStruct:
		fields := make([]Field, len(e.fields))
		for i, f := range e.fields {
			t, err := b.Parse(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Type: t}
		}
		return Struct(fields...), nil
	}

	variants := make([]Variant, len(e.variants))
	for i, v := range e.variants {
		variants[i] = Variant{Index: v.Index, Name: v.Name}
		if isUnitExpr(v.Type) {
			continue
		}
		t, err := b.Parse(v.Type)
		if err != nil {
			return nil, err
		}
		variants[i].Type = t
	}
	return Enum(variants...), nil
}

func isUnitExpr(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "()", "Null":
		return true
	}
	return false
}

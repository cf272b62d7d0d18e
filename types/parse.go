package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/subscript/errors"
)

type exprKind uint8

const (
	exprName exprKind = iota
	exprTuple
	exprArray
	exprSlice
)

// expr is a parsed type expression such as Vec<(AccountId, u32)>.
type expr struct {
	kind exprKind
	name string
	args []*expr
	n    uint32
}

func (e *expr) String() string {
	switch e.kind {
	case exprTuple:
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = a.String()
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ",") + ")"
	case exprArray:
		return fmt.Sprintf("[%s;%d]", e.args[0], e.n)
	case exprSlice:
		return "[" + e.args[0].String() + "]"
	}
	if len(e.args) == 0 {
		return e.name
	}
	parts := make([]string, len(e.args))
	for i, a := range e.args {
		parts[i] = a.String()
	}
	return e.name + "<" + strings.Join(parts, ",") + ">"
}

// parseExpr parses a type expression as written in legacy metadata and
// custom type documents.
func parseExpr(s string) (*expr, error) {
	p := &exprParser{s: s}
	e, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, p.fail("unexpected %q", p.s[p.pos:])
	}
	return e, nil
}

type exprParser struct {
	s   string
	pos int
}

func (p *exprParser) fail(format string, args ...any) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidData).
		TypeName(p.s).Offset(p.pos).Detail(format, args...).Build()
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *exprParser) expect(c byte) error {
	if p.peek() != c {
		return p.fail("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *exprParser) parseType() (*expr, error) {
	switch p.peek() {
	case 0:
		return nil, p.fail("empty type")
	case '&':
		p.pos++
		if p.peek() == '\'' {
			p.pos++
			p.ident()
		}
		return p.parseType()
	case '(':
		return p.parseTuple()
	case '[':
		return p.parseArray()
	case '<':
		return p.parseQualified()
	}
	return p.parseNamed()
}

func (p *exprParser) parseTuple() (*expr, error) {
	p.pos++
	e := &expr{kind: exprTuple}
	trailing := false
	for p.peek() != ')' {
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		e.args = append(e.args, arg)
		trailing = false
		if p.peek() == ',' {
			p.pos++
			trailing = true
			continue
		}
		if p.peek() != ')' {
			return nil, p.fail("expected ',' or ')'")
		}
	}
	p.pos++
	// (T) is just T; (T,) is a one-element tuple.
	if len(e.args) == 1 && !trailing {
		return e.args[0], nil
	}
	return e, nil
}

func (p *exprParser) parseArray() (*expr, error) {
	p.pos++
	elem, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if p.peek() == ']' {
		p.pos++
		return &expr{kind: exprSlice, args: []*expr{elem}}, nil
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseUint(p.s[start:p.pos], 10, 32)
	if err != nil {
		return nil, p.fail("invalid array length")
	}
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return &expr{kind: exprArray, args: []*expr{elem}, n: uint32(n)}, nil
}

// parseQualified handles <T as Trait>::Name by keeping only Name.
func (p *exprParser) parseQualified() (*expr, error) {
	depth := 0
	for ; p.pos < len(p.s); p.pos++ {
		switch p.s[p.pos] {
		case '<':
			depth++
		case '>':
			depth--
		}
		if depth == 0 {
			break
		}
	}
	if depth != 0 {
		return nil, p.fail("unterminated qualified path")
	}
	p.pos++
	if !strings.HasPrefix(p.s[p.pos:], "::") {
		return nil, p.fail("expected '::' after qualified path")
	}
	p.pos += 2
	return p.parseNamed()
}

func (p *exprParser) ident() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '_' || c == ':' || c == '#' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func (p *exprParser) parseNamed() (*expr, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, p.fail("expected type name")
	}
	name = strings.TrimPrefix(name, "T::")
	e := &expr{kind: exprName, name: name}
	if p.peek() != '<' {
		return e, nil
	}
	p.pos++
	for {
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		e.args = append(e.args, arg)
		switch p.peek() {
		case ',':
			p.pos++
			if p.peek() == '>' {
				p.pos++
				return e, nil
			}
		case '>':
			p.pos++
			return e, nil
		default:
			return nil, p.fail("expected ',' or '>'")
		}
	}
}

// sink receives composite definitions discovered while registering an
// expression.
type sink interface {
	has(name string) bool
	put(name string, def *TypeDef)
}

// register defines every composite inside e and returns the name that
// refers to e.
func register(s sink, e *expr) (string, error) {
	name := e.String()
	switch e.kind {
	case exprTuple:
		elems := make([]string, len(e.args))
		for i, a := range e.args {
			n, err := register(s, a)
			if err != nil {
				return "", err
			}
			elems[i] = n
		}
		name = "(" + strings.Join(elems, ",") + ")"
		if len(elems) == 1 {
			name = "(" + elems[0] + ",)"
		}
		if !s.has(name) {
			s.put(name, Tuple(elems...))
		}
		return name, nil
	case exprArray, exprSlice:
		elem, err := register(s, e.args[0])
		if err != nil {
			return "", err
		}
		if e.kind == exprSlice {
			name = "Vec<" + elem + ">"
			if !s.has(name) {
				s.put(name, Sequence(elem))
			}
			return name, nil
		}
		name = fmt.Sprintf("[%s;%d]", elem, e.n)
		if !s.has(name) {
			s.put(name, Array(elem, e.n))
		}
		return name, nil
	}

	if len(e.args) == 0 {
		if e.name == "PhantomData" {
			return "()", nil
		}
		if i := strings.LastIndex(e.name, "::"); i >= 0 && !s.has(e.name) {
			s.put(e.name, Alias(e.name[i+2:]))
		}
		return e.name, nil
	}

	args := make([]string, len(e.args))
	for i, a := range e.args {
		n, err := register(s, a)
		if err != nil {
			return "", err
		}
		args[i] = n
	}

	wrapper := e.name
	if i := strings.LastIndex(wrapper, "::"); i >= 0 {
		wrapper = wrapper[i+2:]
	}

	var def *TypeDef
	switch wrapper {
	case "Vec", "VecDeque", "BTreeSet", "BoundedVec", "WeakBoundedVec", "BoundedBTreeSet":
		name = "Vec<" + args[0] + ">"
		def = Sequence(args[0])
	case "Option":
		name = "Option<" + args[0] + ">"
		def = Option(args[0])
	case "Compact":
		name = "Compact<" + args[0] + ">"
		def = Compact(args[0])
	case "Box", "Rc", "Arc", "Cow":
		return args[0], nil
	case "PhantomData":
		return "()", nil
	case "Result":
		if len(args) != 2 {
			return "", errors.New(errors.PhaseParse, errors.KindInvalidData).
				TypeName(name).Detail("Result takes two parameters").Build()
		}
		name = "Result<" + args[0] + "," + args[1] + ">"
		def = Enum(Variant{Index: 0, Name: "Ok", Type: args[0]}, Variant{Index: 1, Name: "Err", Type: args[1]})
	case "BTreeMap", "HashMap", "BoundedBTreeMap":
		if len(args) < 2 {
			return "", errors.New(errors.PhaseParse, errors.KindInvalidData).
				TypeName(name).Detail("%s takes two parameters", wrapper).Build()
		}
		name = "BTreeMap<" + args[0] + "," + args[1] + ">"
		def = Map(args[0], args[1])
	default:
		name = e.name + "<" + strings.Join(args, ",") + ">"
		def = Alias(e.name)
	}
	if !s.has(name) {
		s.put(name, def)
	}
	return name, nil
}

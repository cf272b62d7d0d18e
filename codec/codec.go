package codec

import (
	"strconv"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/scale"
	"github.com/wippyai/subscript/types"
)

// Codec encodes and decodes values against a type registry. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	reg *types.Registry
}

// New returns a codec over reg.
func New(reg *types.Registry) *Codec {
	return &Codec{reg: reg}
}

// Registry returns the registry the codec resolves names against.
func (c *Codec) Registry() *types.Registry {
	return c.reg
}

// Encode serializes v as the named type.
func (c *Codec) Encode(typeName string, v Value) ([]byte, error) {
	w := getWriter()
	defer putWriter(w)
	if err := c.encode(w, typeName, v, nil); err != nil {
		return nil, err
	}
	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out, nil
}

// EncodeTo appends the encoding of v to w.
func (c *Codec) EncodeTo(w *scale.Writer, typeName string, v Value) error {
	return c.encode(w, typeName, v, nil)
}

// Decode deserializes one value of the named type from the front of data
// and returns it with the unread remainder.
func (c *Codec) Decode(typeName string, data []byte) (Value, []byte, error) {
	r := scale.NewReader(data)
	v, err := c.decode(r, typeName, nil)
	if err != nil {
		return Value{}, nil, err
	}
	return v, r.Remaining(), nil
}

// DecodeAll is Decode that rejects trailing bytes.
func (c *Codec) DecodeAll(typeName string, data []byte) (Value, error) {
	r := scale.NewReader(data)
	v, err := c.decode(r, typeName, nil)
	if err != nil {
		return Value{}, err
	}
	if r.Len() > 0 {
		return Value{}, errors.New(errors.PhaseDecode, errors.KindTrailingBytes).
			TypeName(typeName).Offset(r.Offset()).
			Detail("%d bytes left after value", r.Len()).Build()
	}
	return v, nil
}

// DecodeFrom reads one value of the named type from r.
func (c *Codec) DecodeFrom(r *scale.Reader, typeName string) (Value, error) {
	return c.decode(r, typeName, nil)
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func indexPath(path []string, i int) []string {
	return appendPath(path, "["+strconv.Itoa(i)+"]")
}

// located fills in the type name and path on an error raised by a scale
// primitive.
func located(err error, typeName string, path []string) error {
	if e, ok := err.(*errors.Error); ok {
		e.TypeName = typeName
		if e.Path == nil {
			e.Path = path
		}
	}
	return err
}

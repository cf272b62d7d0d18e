package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"strings"

	"github.com/wippyai/subscript/errors"
)

// maxSafeJSONInt is the largest integer a JSON consumer can hold exactly
// in a float64.
var maxSafeJSONInt = big.NewInt(1<<53 - 1)

// MarshalJSON renders v preserving struct field order. Bytes become 0x-hex,
// integers beyond 2^53 become decimal strings, unit variants become their
// name and other variants {"Name": payload}.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.Kind {
	case KindUnit:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt:
		if v.Int == nil {
			buf.WriteString("null")
			return nil
		}
		if new(big.Int).Abs(v.Int).Cmp(maxSafeJSONInt) <= 0 {
			buf.WriteString(v.Int.String())
		} else {
			buf.WriteByte('"')
			buf.WriteString(v.Int.String())
			buf.WriteByte('"')
		}
	case KindBytes:
		buf.WriteString(`"0x`)
		buf.WriteString(hex.EncodeToString(v.Bytes))
		buf.WriteByte('"')
	case KindText:
		return writeJSONString(buf, v.Text)
	case KindSequence:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindStruct:
		buf.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, f.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := f.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindEnum:
		if v.Payload == nil {
			return writeJSONString(buf, v.Name)
		}
		buf.WriteByte('{')
		if err := writeJSONString(buf, v.Name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := v.Payload.writeJSON(buf); err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		return errors.Unsupported(errors.PhaseEncode, "json for value kind "+v.Kind.String())
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// FromJSON converts a JSON document into a Value: objects become structs
// in document order, arrays become sequences, numbers become integers,
// strings become text and null becomes unit. The encoder accepts these
// shapes wherever the descriptor allows, e.g. text naming an enum variant.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSONValue(dec)
	if err != nil {
		return Value{}, errors.ParseFailed("json value", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.InvalidInput(errors.PhaseParse, "trailing data after json value")
	}
	return v, nil
}

// FromJSONArgs parses a JSON array into a list of values.
func FromJSONArgs(data []byte) ([]Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	v, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindSequence {
		return nil, errors.InvalidInput(errors.PhaseParse, "arguments must be a json array")
	}
	return v.Items, nil
}

func readJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Unit(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case json.Number:
		n, ok := new(big.Int).SetString(t.String(), 10)
		if !ok {
			return Value{}, errors.InvalidInput(errors.PhaseParse, "non-integer number "+t.String())
		}
		return Value{Kind: KindInt, Int: n}, nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				it, err := readJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Seq(items...), nil
		case '{':
			var fields []Field
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := kt.(string)
				fv, err := readJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, F(key, fv))
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return NewStruct(fields...), nil
		}
	}
	return Value{}, errors.InvalidInput(errors.PhaseParse, "unexpected json token")
}

// parseHex decodes a 0x-prefixed hex string.
func parseHex(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, false
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, false
	}
	return b, true
}

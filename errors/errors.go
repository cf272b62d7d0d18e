package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseSchema    Phase = "schema"    // metadata and registry construction
	PhaseResolve   Phase = "resolve"   // type lookup by name
	PhaseEncode    Phase = "encode"    // value to bytes
	PhaseDecode    Phase = "decode"    // bytes to value
	PhaseCall      Phase = "call"      // call construction
	PhaseStorage   Phase = "storage"   // storage key and value handling
	PhaseDispatch  Phase = "dispatch"  // submission and event extraction
	PhaseTransport Phase = "transport" // node collaborator
	PhaseParse     Phase = "parse"     // documents and type expressions
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindTruncated        Kind = "truncated"
	KindBadCompact       Kind = "bad_compact"
	KindInvalidData      Kind = "invalid_data"
	KindInvalidUTF8      Kind = "invalid_utf8"
	KindInvalidVariant   Kind = "invalid_variant"
	KindTrailingBytes    Kind = "trailing_bytes"
	KindUnsupported      Kind = "unsupported"
	KindFieldMissing     Kind = "field_missing"
	KindFieldUnknown     Kind = "field_unknown"
	KindOverflow         Kind = "overflow"
	KindUnknownType      Kind = "unknown_type"
	KindUnknownCall      Kind = "unknown_call"
	KindArgumentMismatch Kind = "argument_mismatch"
	KindUnresolved       Kind = "unresolved"
	KindCycle            Kind = "cycle"
	KindDuplicate        Kind = "duplicate"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindTransport        Kind = "transport"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	TypeName string
	Detail   string
	Path     []string
	Offset   int
	// HasOffset is set when Offset carries a byte position.
	HasOffset bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.TypeName != "" {
		b.WriteString(": type ")
		b.WriteString(e.TypeName)
	}

	if e.HasOffset {
		if e.TypeName != "" {
			b.WriteString(", ")
		} else {
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "offset %d", e.Offset)
	}

	if e.Detail != "" {
		if e.TypeName != "" || e.HasOffset {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// An empty Phase or Kind on the target matches any value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return (t.Phase == "" || e.Phase == t.Phase) && (t.Kind == "" || e.Kind == t.Kind)
}

// IsKind reports whether any error in err's chain has the given kind
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, &Error{Kind: kind})
}

// IsPhase reports whether any error in err's chain has the given phase
func IsPhase(err error, phase Phase) bool {
	return stderrors.Is(err, &Error{Phase: phase})
}

// As is a convenience wrapper around the standard errors.As for *Error
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// TypeName sets the offending type name
func (b *Builder) TypeName(t string) *Builder {
	b.err.TypeName = t
	return b
}

// Offset sets the byte offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	b.err.HasOffset = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, typeName, got string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		TypeName: typeName,
		Detail:   fmt.Sprintf("cannot use %s value", got),
	}
}

// Truncated creates a truncated-input error
func Truncated(path []string, typeName string, offset, need, have int) *Error {
	return &Error{
		Phase:     PhaseDecode,
		Kind:      KindTruncated,
		Path:      path,
		TypeName:  typeName,
		Offset:    offset,
		HasOffset: true,
		Detail:    fmt.Sprintf("need %d bytes, have %d", need, have),
	}
}

// BadCompact creates a malformed compact integer error
func BadCompact(path []string, offset int, detail string) *Error {
	return &Error{
		Phase:     PhaseDecode,
		Kind:      KindBadCompact,
		Path:      path,
		Offset:    offset,
		HasOffset: true,
		Detail:    detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// FieldMissing creates a missing field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("required field %q not found", fieldName),
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldUnknown,
		Path:   path,
		Detail: fmt.Sprintf("unknown field %q", fieldName),
	}
}

// InvalidDiscriminant creates an unknown enum discriminant error
func InvalidDiscriminant(phase Phase, path []string, typeName string, disc uint32) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidVariant,
		Path:     path,
		TypeName: typeName,
		Detail:   fmt.Sprintf("unknown discriminant %d", disc),
		Value:    disc,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, typeName string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		TypeName: typeName,
		Detail:   fmt.Sprintf("value %v overflows %s", value, typeName),
		Value:    value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// UnknownType creates an unknown type name error
func UnknownType(name string) *Error {
	return &Error{
		Phase:    PhaseResolve,
		Kind:     KindUnknownType,
		TypeName: name,
		Detail:   fmt.Sprintf("type %q is not registered", name),
	}
}

// UnknownCall creates an unknown module item error
func UnknownCall(phase Phase, module, item string) *Error {
	detail := fmt.Sprintf("module %q not found", module)
	if item != "" {
		detail = fmt.Sprintf("%s.%s not found", module, item)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownCall,
		Detail: detail,
	}
}

// ArgumentMismatch creates an arity error
func ArgumentMismatch(phase Phase, what string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArgumentMismatch,
		Detail: fmt.Sprintf("%s expects %d arguments, got %d", what, want, got),
		Value:  got,
	}
}

// Schema creates a registry construction error
func Schema(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseSchema,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Transport wraps a node collaborator failure
func Transport(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindTransport,
		Detail: op,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

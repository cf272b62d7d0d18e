package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:     PhaseDecode,
				Kind:      KindTruncated,
				Path:      []string{"transfer", "dest", "Id"},
				TypeName:  "AccountId",
				Offset:    12,
				HasOffset: true,
				Detail:    "need 32 bytes, have 4",
			},
			contains: []string{"[decode]", "truncated", "transfer.dest.Id", "AccountId", "offset 12", "need 32 bytes"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseSchema,
				Kind:  KindCycle,
			},
			contains: []string{"[schema]", "cycle"},
		},
		{
			name: "offset without type",
			err: &Error{
				Phase:     PhaseDecode,
				Kind:      KindBadCompact,
				HasOffset: true,
			},
			contains: []string{"bad_compact: offset 0"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseTransport,
				Kind:   KindTransport,
				Detail: "state_getStorage",
				Cause:  errors.New("connection reset"),
			},
			contains: []string{"[transport]", "state_getStorage", "caused by", "connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseCall,
		Kind:  KindArgumentMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseCall, Kind: KindArgumentMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseStorage, Kind: KindArgumentMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindUnknownCall}) {
		t.Error("Is should not match different kind")
	}
	if !err.Is(&Error{Kind: KindArgumentMismatch}) {
		t.Error("Is should treat empty phase as wildcard")
	}

	wrapped := fmt.Errorf("build call: %w", err)
	if !IsKind(wrapped, KindArgumentMismatch) {
		t.Error("IsKind should see through fmt wrapping")
	}
	if !IsPhase(wrapped, PhaseCall) {
		t.Error("IsPhase should see through fmt wrapping")
	}
	if IsKind(errors.New("plain"), KindArgumentMismatch) {
		t.Error("IsKind matched a plain error")
	}

	got, ok := As(wrapped)
	if !ok || got != err {
		t.Errorf("As = %v, %v; want original error", got, ok)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEncode, KindTypeMismatch).
		Path("transfer", "value").
		TypeName("Compact<Balance>").
		Offset(3).
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "integer", "text").
		Build()

	if err.Phase != PhaseEncode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEncode)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "transfer" || err.Path[1] != "value" {
		t.Errorf("Path = %v, want [transfer value]", err.Path)
	}
	if err.TypeName != "Compact<Balance>" {
		t.Errorf("TypeName = %v, want 'Compact<Balance>'", err.TypeName)
	}
	if !err.HasOffset || err.Offset != 3 {
		t.Errorf("Offset = %v (set %v), want 3", err.Offset, err.HasOffset)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected integer, got text" {
		t.Errorf("Detail = %v, want 'expected integer, got text'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"TypeMismatch", TypeMismatch(PhaseEncode, []string{"f"}, "u32", "text"), PhaseEncode, KindTypeMismatch},
		{"Truncated", Truncated(nil, "u64", 4, 8, 3), PhaseDecode, KindTruncated},
		{"BadCompact", BadCompact(nil, 0, "non-canonical"), PhaseDecode, KindBadCompact},
		{"InvalidUTF8", InvalidUTF8(PhaseDecode, nil, []byte{0xff}), PhaseDecode, KindInvalidUTF8},
		{"FieldMissing", FieldMissing(PhaseEncode, nil, "free"), PhaseEncode, KindFieldMissing},
		{"FieldUnknown", FieldUnknown(PhaseEncode, nil, "extra"), PhaseEncode, KindFieldUnknown},
		{"InvalidDiscriminant", InvalidDiscriminant(PhaseDecode, nil, "Phase", 9), PhaseDecode, KindInvalidVariant},
		{"Overflow", Overflow(PhaseEncode, nil, 300, "u8"), PhaseEncode, KindOverflow},
		{"InvalidData", InvalidData(PhaseDecode, nil, "bool byte 7"), PhaseDecode, KindInvalidData},
		{"Unsupported", Unsupported(PhaseSchema, "metadata v9"), PhaseSchema, KindUnsupported},
		{"UnknownType", UnknownType("Foo"), PhaseResolve, KindUnknownType},
		{"UnknownCall", UnknownCall(PhaseCall, "Balances", "burn"), PhaseCall, KindUnknownCall},
		{"ArgumentMismatch", ArgumentMismatch(PhaseCall, "Balances.transfer", 2, 1), PhaseCall, KindArgumentMismatch},
		{"Schema", Schema(KindCycle, "Foo", nil), PhaseSchema, KindCycle},
		{"Transport", Transport("state_getMetadata", errors.New("eof")), PhaseTransport, KindTransport},
		{"NotFound", NotFound(PhaseDispatch, "block", "0x00"), PhaseDispatch, KindNotFound},
		{"InvalidInput", InvalidInput(PhaseDispatch, "empty extrinsic"), PhaseDispatch, KindInvalidInput},
		{"ParseFailed", ParseFailed("types document", nil), PhaseParse, KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	t.Run("Truncated offset", func(t *testing.T) {
		err := Truncated([]string{"nonce"}, "u32", 7, 4, 1)
		if !err.HasOffset || err.Offset != 7 {
			t.Errorf("Offset = %d, want 7", err.Offset)
		}
	})

	t.Run("UnknownCall module only", func(t *testing.T) {
		err := UnknownCall(PhaseStorage, "Nope", "")
		if !strings.Contains(err.Detail, `module "Nope"`) {
			t.Errorf("Detail = %q", err.Detail)
		}
	})
}

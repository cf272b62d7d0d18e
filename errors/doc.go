// Package errors provides structured error types for subscript.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, offending type name, byte
// offset into the input, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTruncated).
//		Path("transfer", "dest").
//		TypeName("AccountId").
//		Offset(2).
//		Detail("need 32 bytes, have 4").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownCall(errors.PhaseCall, "Balances", "burn")
//	err := errors.ArgumentMismatch(errors.PhaseCall, "Balances.transfer", 2, 1)
//
// Match with the standard library; an empty Phase or Kind in the target
// acts as a wildcard:
//
//	if errors.Is(err, &errors.Error{Kind: errors.KindArgumentMismatch}) { ... }
//	if errors.IsKind(err, errors.KindTruncated) { ... }
package errors

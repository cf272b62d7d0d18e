// Package subscript is a metadata-driven SCALE codec and call dispatch
// layer for Substrate-style nodes.
//
// Nothing about a chain is compiled in. Runtime metadata (V12 to V14)
// describes the types, calls, events, storage and constants, and the
// library encodes and decodes against that description at run time.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	subscript/
//	├── scale/       SCALE primitives: fixed-width and compact integers, byte reader/writer
//	├── types/       Type registry: type expressions, built-in defaults, YAML custom types
//	├── codec/       Dynamic values and the encoder/decoder over registry descriptors
//	├── hashing/     Storage key hashers (twox, blake2) in a pluggable set
//	├── metadata/    Metadata blob parsing (V12, V13, V14) into modules and a registry
//	├── resolver/    Call payloads and storage keys, storage reads and decoding
//	├── transport/   Node interface, JSON-RPC messages and extrinsic status parsing
//	│   ├── wsrpc/   WebSocket client with extrinsic subscriptions
//	│   └── httprpc/ Retrying HTTP client for queries
//	├── dispatch/    Sessions: runtime upgrades, extrinsics, nonces, submission, events
//	├── errors/      Structured error types for debugging
//	└── testbed/     Synthetic runtime metadata for tests
//
// # Quick Start
//
// Open a session and read storage:
//
//	c, err := wsrpc.Dial(ctx, "ws://127.0.0.1:9944")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	sess, err := dispatch.Open(ctx, c)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	acct, err := sess.Storage(ctx, "System", "Account", codec.Bytes(alice))
//	fmt.Println(acct.Value.Get("nonce"))
//
// Build, sign and submit a call:
//
//	res, err := sess.SignAndSubmit(ctx, signer, "Balances", "transfer",
//	    []codec.Value{codec.Variant("Id", codec.Bytes(bob)), codec.Uint(1e12)},
//	    dispatch.SignOptions{}, dispatch.WithWait(dispatch.WaitOutcome))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if de := res.DispatchError(); de != nil {
//	    fmt.Println("failed:", de)
//	}
//
// # Values
//
// Decoded data is a codec.Value tree:
//
//   - Scalars: bool, integers of any width (as big.Int), bytes, text
//   - Compound: sequences and tuples, structs with ordered fields
//   - Enums: variant index and name with an optional payload
//
// # Thread Safety
//
// Registries, codecs, metadata and resolvers are immutable once built and
// safe for concurrent use. A Session swaps whole snapshots on runtime
// upgrade, so in-flight operations keep the metadata they started with.
package subscript

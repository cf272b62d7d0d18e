// Package metadata decodes a runtime metadata blob and normalizes it into a
// type registry plus a module table.
//
// Two layouts are understood. V12 and V13 name argument and storage types
// with Rust-like type expressions, which are parsed into the registry with
// types.Builder.Parse. V14 ships a self-describing portable type table;
// each entry is registered as "#<id>", and types with a unique path are
// also reachable by that path and its last segment.
//
// Build then synthesizes the runtime-wide enums used to decode calls,
// events and dispatch errors:
//
//	<Module>::Call   call enum of one module
//	Call             module index, then the module's call
//	<Module>::Event  event enum of one module
//	Event            module index, then the module's event
//	RuntimeError     module index, then the module's error
//	EventRecord      {phase, event, topics}
//	EventRecords     Vec<EventRecord>, the System.Events value
//
// A custom types document overrides any of these, and any built-in or
// derived type, by name.
//
// Metadata is immutable once built and safe for concurrent use.
package metadata

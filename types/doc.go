// Package types is the type registry: a table from type name to structural
// descriptor, shared read-only by the codec and the call resolver.
//
// Descriptors reference their children by name rather than by pointer, so a
// recursive type such as
//
//	Tree { value: u32, children: Vec<Tree> }
//
// is a name lookup, not an infinitely nested structure:
//
//	"Tree"      -> Struct{value: "u32", children: "Vec<Tree>"}
//	"Vec<Tree>" -> Sequence{"Tree"}
//
// Registries are assembled with a Builder from three sources, in increasing
// precedence: built-in defaults, definitions derived from node metadata, and
// custom-types documents. Build checks that every name resolves and that
// every type has a finite encoding; a type that contains itself except
// through a Sequence, Option, Map or enum alternative is rejected.
//
// Type expressions follow the spelling used by legacy metadata:
//
//	Vec<T>  Option<T>  Compact<T>  Box<T>  Result<T, E>  BTreeMap<K, V>
//	(A, B)  [T; N]  [T]  PhantomData<T>  T::Name  <T as Trait>::Name
package types

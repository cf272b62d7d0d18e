package types

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/wippyai/subscript/errors"
)

func TestParseCanonicalNames(t *testing.T) {
	tests := []struct {
		expr string
		want string
		kind Kind
	}{
		{"Vec<u8>", "Vec<u8>", KindSequence},
		{"Vec< T::AccountId >", "Vec<AccountId>", KindSequence},
		{"Option<Vec<u8>>", "Option<Vec<u8>>", KindOption},
		{"Compact<T::Balance>", "Compact<Balance>", KindCompact},
		{"(AccountId, Balance)", "(AccountId,Balance)", KindTuple},
		{"(u32,)", "(u32,)", KindTuple},
		{"[u8; 32]", "[u8;32]", KindArray},
		{"&'static [u8]", "Vec<u8>", KindSequence},
		{"BTreeMap<u32, Vec<u8>>", "BTreeMap<u32,Vec<u8>>", KindMap},
		{"BTreeSet<u32>", "Vec<u32>", KindSequence},
		{"BoundedVec<u8, MaxLen>", "Vec<u8>", KindSequence},
		{"Result<(), DispatchError>", "Result<(),DispatchError>", KindEnum},
		{"Vec<<T as Trait>::Moment>", "Vec<Moment>", KindSequence},
		{"Weird<u8>", "Weird<u8>", KindAlias},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			b := NewBuilder()
			got, err := b.Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.expr, got, tt.want)
			}
			d, ok := b.Lookup(got)
			if !ok {
				t.Fatalf("%q not registered", got)
			}
			if d.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", d.Kind, tt.kind)
			}
		})
	}
}

func TestParseTransparentWrappers(t *testing.T) {
	tests := map[string]string{
		"Box<Call>":                         "Call",
		"PhantomData<T>":                    "()",
		"PhantomData":                       "()",
		"(Balance)":                         "Balance",
		"<T as frame_system::Config>::Hash": "Hash",
	}
	for expr, want := range tests {
		got, err := NewBuilder().Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", expr, err)
		}
		if got != want {
			t.Errorf("Parse(%q) = %q, want %q", expr, got, want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{"", "Vec<u8", "[u8; x]", "(u8 u16)", "Result<u8>", "Vec<u8>>"} {
		if _, err := NewBuilder().Parse(expr); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", expr)
		}
	}
}

func TestBuildDetectsCycles(t *testing.T) {
	tests := []struct {
		name   string
		define func(b *Builder)
		cyclic bool
	}{
		{
			name: "direct self reference",
			define: func(b *Builder) {
				b.Define("Node", Struct(Field{"value", "u32"}, Field{"next", "Node"}))
			},
			cyclic: true,
		},
		{
			name: "through option",
			define: func(b *Builder) {
				b.Define("Option<Node>", Option("Node"))
				b.Define("Node", Struct(Field{"value", "u32"}, Field{"next", "Option<Node>"}))
			},
		},
		{
			name: "through sequence",
			define: func(b *Builder) {
				b.Define("Vec<Tree>", Sequence("Tree"))
				b.Define("Tree", Struct(Field{"value", "u32"}, Field{"children", "Vec<Tree>"}))
			},
		},
		{
			name: "enum with ground variant",
			define: func(b *Builder) {
				b.Define("List", Enum(Variant{0, "Nil", ""}, Variant{1, "Cons", "(u8,List)"}))
				b.Define("(u8,List)", Tuple("u8", "List"))
			},
		},
		{
			name: "enum without ground variant",
			define: func(b *Builder) {
				b.Define("Loop", Enum(Variant{0, "Again", "Loop"}))
			},
			cyclic: true,
		},
		{
			name: "mutual recursion",
			define: func(b *Builder) {
				b.Define("A", Struct(Field{"b", "B"}))
				b.Define("B", Tuple("u8", "A"))
			},
			cyclic: true,
		},
		{
			name: "alias loop",
			define: func(b *Builder) {
				b.Define("A", Alias("B"))
				b.Define("B", Alias("A"))
			},
			cyclic: true,
		},
		{
			name: "empty array of self",
			define: func(b *Builder) {
				b.Define("Z", Struct(Field{"none", "[Z;0]"}))
				b.Define("[Z;0]", Array("Z", 0))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.define(b)
			_, err := b.Build()
			if tt.cyclic {
				if err == nil {
					t.Fatal("Build succeeded, want cycle error")
				}
				if !errors.IsKind(err, errors.KindCycle) || !errors.IsPhase(err, errors.PhaseSchema) {
					t.Errorf("error = %v, want schema cycle", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
		})
	}
}

func TestBuildReportsAllUnresolved(t *testing.T) {
	b := NewBuilder()
	b.Define("Pair", Struct(Field{"left", "Missing1"}, Field{"right", "Missing2"}))
	b.Define("Other", Sequence("Missing1"))

	_, err := b.Build()
	if err == nil {
		t.Fatal("Build succeeded, want unresolved error")
	}
	e, ok := errors.As(err)
	if !ok || e.Kind != errors.KindUnresolved {
		t.Fatalf("error = %v, want unresolved schema error", err)
	}
	if n := len(multierr.Errors(e.Cause)); n != 2 {
		t.Errorf("aggregated %d errors, want 2", n)
	}
	for _, name := range []string{"Missing1", "Missing2", "Pair", "Other"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestOverridePrecedence(t *testing.T) {
	b := NewBuilder()
	b.Override("Balance", Alias("u64"))
	b.Define("Balance", Alias("u128"))
	if d, _ := b.Lookup("Balance"); d.Elem != "u64" {
		t.Errorf("custom definition replaced by later auto definition: %v", d)
	}

	b.Define("Moment", Alias("u32"))
	b.Override("Moment", Alias("u64"))
	if d, _ := b.Lookup("Moment"); d.Elem != "u64" {
		t.Errorf("custom definition did not replace earlier auto definition: %v", d)
	}
	if !b.IsCustom("Moment") || b.IsCustom("u8") {
		t.Error("IsCustom reports wrong origin")
	}
}

func TestLoadDocumentJSON(t *testing.T) {
	doc, err := LoadDocument([]byte(`{
    "types": {
      "Ticker": "[u8; 12]",
      "Venue": {"owner": "AccountId", "kind": "VenueKind", "details": "Vec<u8>"},
      "VenueKind": {"_enum": ["Other", "Distribution", "Sto", "Exchange"]},
      "AuthStatus": {"_enum": {"Pending": "Null", "Approved": "Moment", "Rejected": ""}},
      "Legacy": {"_enum": {"A": 3, "B": 7}},
      "Perms": {"_set": {"_bitLength": 16, "Read": 1, "Write": 2}}
    }
  }`))
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Ticker", "Venue", "VenueKind", "AuthStatus", "Legacy", "Perms"}, doc.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	b := NewBuilder()
	if err := b.MergeDefaults(Defaults()); err != nil {
		t.Fatalf("MergeDefaults failed: %v", err)
	}
	if err := b.Merge(doc); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	venue, _ := reg.Resolve("Venue")
	wantFields := []Field{{"owner", "AccountId"}, {"kind", "VenueKind"}, {"details", "Vec<u8>"}}
	if diff := cmp.Diff(wantFields, venue.Fields); diff != "" {
		t.Errorf("Venue fields mismatch (-want +got):\n%s", diff)
	}

	status, _ := reg.Resolve("AuthStatus")
	wantVariants := []Variant{{0, "Pending", ""}, {1, "Approved", "Moment"}, {2, "Rejected", ""}}
	if diff := cmp.Diff(wantVariants, status.Variants); diff != "" {
		t.Errorf("AuthStatus variants mismatch (-want +got):\n%s", diff)
	}

	legacy, _ := reg.Resolve("Legacy")
	if v, ok := legacy.VariantByName("B"); !ok || v.Index != 7 {
		t.Errorf("Legacy.B = %+v, want index 7", v)
	}

	perms, _ := reg.Underlying("Perms")
	if perms.Kind != KindPrimitive || perms.Prim != PrimU16 {
		t.Errorf("Perms = %v, want u16", perms)
	}

	ticker, err := reg.Underlying("Ticker")
	if err != nil || ticker.Kind != KindArray || ticker.Len != 12 {
		t.Errorf("Ticker = %v, %v", ticker, err)
	}
}

func TestLoadDocumentYAML(t *testing.T) {
	doc, err := LoadDocument([]byte(`
Instruction:
  venue: u64
  status: InstructionStatus
  legs: "Vec<Leg>"
InstructionStatus:
  _enum: [Unknown, Pending, Failed]
Leg:
  from: AccountId
  to: AccountId
  amount: Balance
`))
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	b := NewBuilder()
	if err := b.MergeDefaults(Defaults()); err != nil {
		t.Fatal(err)
	}
	if err := b.Merge(doc); err != nil {
		t.Fatal(err)
	}
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ins, _ := reg.Resolve("Instruction")
	if len(ins.Fields) != 3 || ins.Fields[2].Name != "legs" || ins.Fields[2].Type != "Vec<Leg>" {
		t.Errorf("Instruction fields = %+v", ins.Fields)
	}
}

func TestLoadDocumentErrors(t *testing.T) {
	for _, src := range []string{
		`[1, 2]`,
		`{"types": ["a"]}`,
		`{"X": {"_enum": "bad"}}`,
		`{"X": {"field": {"nested": "u8"}}}`,
		`{"X": {"_set": {"_bitLength": 12}}}`,
		`{"X": {"_unknown": 1}}`,
	} {
		if _, err := LoadDocument([]byte(src)); err == nil {
			t.Errorf("LoadDocument(%s) succeeded, want error", src)
		}
	}
}

func TestDefaultsBuild(t *testing.T) {
	b := NewBuilder()
	if err := b.MergeDefaults(Defaults()); err != nil {
		t.Fatalf("MergeDefaults failed: %v", err)
	}
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, name := range []string{"AccountId", "Balance", "MultiAddress", "AccountInfo", "DispatchError", "Phase", "DispatchResult"} {
		if _, err := reg.Resolve(name); err != nil {
			t.Errorf("Resolve(%s) failed: %v", name, err)
		}
	}
	bal, _ := reg.Underlying("BalanceOf")
	if bal.Prim != PrimU128 {
		t.Errorf("BalanceOf = %v, want u128", bal)
	}
}

func TestRegistryResolveDerived(t *testing.T) {
	b := NewBuilder()
	if err := b.MergeDefaults(Defaults()); err != nil {
		t.Fatal(err)
	}
	reg, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	n := reg.Len()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := reg.Resolve("Vec<(AccountId, Option<Balance>)>")
			if err != nil {
				t.Errorf("Resolve failed: %v", err)
				return
			}
			if d.Kind != KindSequence || d.Elem != "(AccountId,Option<Balance>)" {
				t.Errorf("derived = %+v", d)
			}
		}()
	}
	wg.Wait()

	if reg.Len() != n {
		t.Errorf("Len changed from %d to %d after deriving", n, reg.Len())
	}
	if _, ok := reg.Lookup("Option<Balance>"); !ok {
		t.Error("inner composite not cached")
	}

	_, err = reg.Resolve("Vec<NoSuchType>")
	if !errors.IsKind(err, errors.KindUnknownType) {
		t.Errorf("Resolve(Vec<NoSuchType>) error = %v, want unknown_type", err)
	}
	_, err = reg.Resolve("NoSuchType")
	if !errors.IsKind(err, errors.KindUnknownType) {
		t.Errorf("Resolve(NoSuchType) error = %v, want unknown_type", err)
	}
}

func TestTypeDefString(t *testing.T) {
	tests := []struct {
		def  *TypeDef
		want string
	}{
		{Sequence("u8"), "Vec<u8>"},
		{Array("u8", 32), "[u8;32]"},
		{Tuple("u32", "Balance"), "(u32,Balance)"},
		{Struct(Field{"a", "u8"}), "{ a: u8 }"},
		{Enum(Variant{0, "None", ""}, Variant{1, "Some", "u8"}), "enum { 0: None, 1: Some(u8) }"},
		{BitSequence(1, false), "BitVec<u8,Lsb0>"},
	}
	for _, tt := range tests {
		if got := tt.def.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

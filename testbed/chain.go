// Package testbed builds metadata blobs and chain state for tests.
//
// Chain describes a runtime in the legacy V13 layout and serializes it
// with Blob. Node returns a small runtime with System, Utility, Balances
// and Assets modules that the package tests share.
package testbed

import (
	"encoding/hex"

	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/scale"
)

// Storage modifiers as written in metadata.
const (
	Optional uint8 = 0
	Default  uint8 = 1
)

// Arg is a named argument type expression.
type Arg struct {
	Name string
	Type string
}

// Chain is a runtime description.
type Chain struct {
	Modules          []Module
	ExtrinsicVersion uint8
	Extensions       []string
}

// Module is a pallet. Calls and Events nil means the section is absent.
type Module struct {
	Name      string
	Index     uint8
	Prefix    string
	Storage   []Storage
	Calls     []Item
	Events    []Item
	Constants []Constant
	Errors    []string
}

// Item is a call or event. Event argument names are ignored.
type Item struct {
	Name string
	Args []Arg
	Docs []string
}

// Storage is a storage entry. No hashers means a plain value.
type Storage struct {
	Name     string
	Modifier uint8
	Hashers  []hashing.Kind
	Keys     []string
	Value    string
	Default  []byte
}

// Constant is a module constant with its encoded value.
type Constant struct {
	Name  string
	Type  string
	Value []byte
}

// Blob serializes the chain as a V13 metadata blob.
func (c *Chain) Blob() []byte {
	w := scale.NewWriter()
	w.WriteU32(0x6174656d)
	w.Byte(13)

	w.WriteCompactU64(uint64(len(c.Modules)))
	for _, m := range c.Modules {
		writeModule(w, &m)
	}

	w.Byte(c.ExtrinsicVersion)
	writeTexts(w, c.Extensions)
	return w.Bytes()
}

func writeModule(w *scale.Writer, m *Module) {
	w.WriteString(m.Name)

	if m.Prefix == "" && len(m.Storage) == 0 {
		w.Byte(0)
	} else {
		w.Byte(1)
		w.WriteString(m.Prefix)
		w.WriteCompactU64(uint64(len(m.Storage)))
		for _, s := range m.Storage {
			writeStorage(w, &s)
		}
	}

	if m.Calls == nil {
		w.Byte(0)
	} else {
		w.Byte(1)
		w.WriteCompactU64(uint64(len(m.Calls)))
		for _, it := range m.Calls {
			w.WriteString(it.Name)
			w.WriteCompactU64(uint64(len(it.Args)))
			for _, a := range it.Args {
				w.WriteString(a.Name)
				w.WriteString(a.Type)
			}
			writeTexts(w, it.Docs)
		}
	}

	if m.Events == nil {
		w.Byte(0)
	} else {
		w.Byte(1)
		w.WriteCompactU64(uint64(len(m.Events)))
		for _, it := range m.Events {
			w.WriteString(it.Name)
			w.WriteCompactU64(uint64(len(it.Args)))
			for _, a := range it.Args {
				w.WriteString(a.Type)
			}
			writeTexts(w, it.Docs)
		}
	}

	w.WriteCompactU64(uint64(len(m.Constants)))
	for _, k := range m.Constants {
		w.WriteString(k.Name)
		w.WriteString(k.Type)
		w.WriteVarBytes(k.Value)
		writeTexts(w, nil)
	}

	w.WriteCompactU64(uint64(len(m.Errors)))
	for _, e := range m.Errors {
		w.WriteString(e)
		writeTexts(w, nil)
	}

	w.Byte(m.Index)
}

func writeStorage(w *scale.Writer, s *Storage) {
	w.WriteString(s.Name)
	w.Byte(s.Modifier)
	switch len(s.Hashers) {
	case 0:
		w.Byte(0)
		w.WriteString(s.Value)
	case 1:
		w.Byte(1)
		w.Byte(byte(s.Hashers[0]))
		w.WriteString(s.Keys[0])
		w.WriteString(s.Value)
		w.WriteBool(false)
	case 2:
		w.Byte(2)
		w.Byte(byte(s.Hashers[0]))
		w.WriteString(s.Keys[0])
		w.WriteString(s.Keys[1])
		w.WriteString(s.Value)
		w.Byte(byte(s.Hashers[1]))
	default:
		w.Byte(3)
		writeTexts(w, s.Keys)
		w.WriteCompactU64(uint64(len(s.Hashers)))
		for _, h := range s.Hashers {
			w.Byte(byte(h))
		}
		w.WriteString(s.Value)
	}
	w.WriteVarBytes(s.Default)
	writeTexts(w, nil)
}

func writeTexts(w *scale.Writer, texts []string) {
	w.WriteCompactU64(uint64(len(texts)))
	for _, t := range texts {
		w.WriteString(t)
	}
}

// Well-known development accounts.
var (
	Alice = mustHex("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	Bob   = mustHex("8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Node returns a runtime with System (0), Utility (1), Balances (5) and
// Assets (7).
func Node() *Chain {
	return &Chain{
		ExtrinsicVersion: 4,
		Extensions: []string{
			"CheckSpecVersion", "CheckTxVersion", "CheckGenesis",
			"CheckMortality", "CheckNonce", "CheckWeight", "ChargeTransactionPayment",
		},
		Modules: []Module{
			{
				Name:   "System",
				Index:  0,
				Prefix: "System",
				Storage: []Storage{
					{
						Name:     "Account",
						Modifier: Default,
						Hashers:  []hashing.Kind{hashing.Blake2_128Concat},
						Keys:     []string{"T::AccountId"},
						Value:    "AccountInfo<T::Index, T::AccountData>",
						Default:  make([]byte, 80),
					},
					{Name: "Number", Modifier: Default, Value: "T::BlockNumber", Default: make([]byte, 4)},
					{Name: "Events", Modifier: Default, Value: "Vec<EventRecord<T::Event, T::Hash>>", Default: []byte{0}},
				},
				Calls: []Item{
					{Name: "remark", Args: []Arg{{"_remark", "Vec<u8>"}}, Docs: []string{" Make some on-chain remark."}},
				},
				Events: []Item{
					{Name: "ExtrinsicSuccess", Args: []Arg{{Type: "DispatchInfo"}}},
					{Name: "ExtrinsicFailed", Args: []Arg{{Type: "DispatchError"}, {Type: "DispatchInfo"}}},
				},
				Constants: []Constant{
					{Name: "BlockHashCount", Type: "T::BlockNumber", Value: []byte{0x60, 0x09, 0, 0}},
				},
				Errors: []string{"InvalidSpecName", "SpecVersionNeedsToIncrease"},
			},
			{
				Name:  "Utility",
				Index: 1,
				Calls: []Item{
					{Name: "batch", Args: []Arg{{"calls", "Vec<<T as Config>::Call>"}}},
				},
				Events: []Item{
					{Name: "BatchInterrupted", Args: []Arg{{Type: "u32"}, {Type: "DispatchError"}}},
					{Name: "BatchCompleted"},
				},
			},
			{
				Name:   "Balances",
				Index:  5,
				Prefix: "Balances",
				Storage: []Storage{
					{Name: "TotalIssuance", Modifier: Default, Value: "T::Balance", Default: make([]byte, 16)},
				},
				Calls: []Item{
					{
						Name: "transfer",
						Args: []Arg{{"dest", "<T::Lookup as StaticLookup>::Source"}, {"value", "Compact<T::Balance>"}},
						Docs: []string{" Transfer some liquid free balance to another account."},
					},
					{
						Name: "transfer_keep_alive",
						Args: []Arg{{"dest", "<T::Lookup as StaticLookup>::Source"}, {"value", "Compact<T::Balance>"}},
					},
				},
				Events: []Item{
					{Name: "Endowed", Args: []Arg{{Type: "AccountId"}, {Type: "Balance"}}},
					{Name: "Transfer", Args: []Arg{{Type: "AccountId"}, {Type: "AccountId"}, {Type: "Balance"}}},
				},
				Constants: []Constant{
					{Name: "ExistentialDeposit", Type: "T::Balance", Value: []byte{0xf4, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
				},
				Errors: []string{"VestingBalance", "LiquidityRestrictions", "Overflow", "InsufficientBalance"},
			},
			{
				Name:   "Assets",
				Index:  7,
				Prefix: "Assets",
				Storage: []Storage{
					{
						Name:     "Account",
						Modifier: Optional,
						Hashers:  []hashing.Kind{hashing.Twox64Concat, hashing.Twox64Concat},
						Keys:     []string{"T::AssetId", "T::AccountId"},
						Value:    "T::Balance",
					},
					{
						Name:     "Approvals",
						Modifier: Optional,
						Hashers:  []hashing.Kind{hashing.Blake2_128Concat, hashing.Blake2_128Concat, hashing.Blake2_128Concat},
						Keys:     []string{"T::AssetId", "T::AccountId", "T::AccountId"},
						Value:    "T::Balance",
					},
				},
				Calls: []Item{
					{Name: "transfer", Args: []Arg{{"id", "Compact<T::AssetId>"}, {"target", "<T::Lookup as StaticLookup>::Source"}, {"amount", "Compact<T::Balance>"}}},
				},
				Events: []Item{},
			},
		},
	}
}

// NodeBlob is Node().Blob().
func NodeBlob() []byte {
	return Node().Blob()
}

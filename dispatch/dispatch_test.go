package dispatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/resolver"
	"github.com/wippyai/subscript/testbed"
	"github.com/wippyai/subscript/transport"
	"github.com/wippyai/subscript/types"
)

var (
	genesis   = bytes.Repeat([]byte{0x11}, 32)
	blockHash = bytes.Repeat([]byte{0x22}, 32)
	otherHash = bytes.Repeat([]byte{0x33}, 32)
)

// fakeNode is an in-memory node serving the testbed runtime.
type fakeNode struct {
	mu        sync.Mutex
	blob      []byte
	version   transport.RuntimeVersion
	storage   map[string][]byte
	blocks    map[string][][]byte
	statuses  []transport.Status
	keepOpen  bool
	submitted [][]byte
	subs      []*fakeSub

	metadataCalls atomic.Int32
	storageCalls  atomic.Int32
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		blob:    testbed.NodeBlob(),
		version: transport.RuntimeVersion{SpecName: "node", SpecVersion: 100, TransactionVersion: 1},
		storage: make(map[string][]byte),
		blocks:  make(map[string][][]byte),
	}
}

func storageID(key, at []byte) string {
	if at == nil {
		return hex.EncodeToString(key)
	}
	return hex.EncodeToString(key) + "@" + hex.EncodeToString(at)
}

func (n *fakeNode) FetchMetadata(context.Context) ([]byte, error) {
	n.metadataCalls.Add(1)
	return n.blob, nil
}

func (n *fakeNode) FetchStorage(_ context.Context, key, at []byte) ([]byte, bool, error) {
	n.storageCalls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := n.storage[storageID(key, at)]; ok {
		return v, true, nil
	}
	v, ok := n.storage[storageID(key, nil)]
	return v, ok, nil
}

func (n *fakeNode) SubmitExtrinsic(_ context.Context, xt []byte) (transport.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, xt)
	sub := &fakeSub{ch: make(chan transport.Status, len(n.statuses))}
	for _, st := range n.statuses {
		sub.ch <- st
	}
	if !n.keepOpen {
		close(sub.ch)
	}
	n.subs = append(n.subs, sub)
	return sub, nil
}

func (n *fakeNode) RuntimeVersion(context.Context) (transport.RuntimeVersion, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version, nil
}

func (n *fakeNode) GenesisHash(context.Context) ([]byte, error) { return genesis, nil }

func (n *fakeNode) BlockExtrinsics(_ context.Context, hash []byte) ([][]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	xts, ok := n.blocks[hex.EncodeToString(hash)]
	if !ok {
		return nil, fmt.Errorf("unknown block %x", hash)
	}
	return xts, nil
}

type fakeSub struct {
	ch     chan transport.Status
	closed atomic.Bool
}

func (s *fakeSub) Updates() <-chan transport.Status { return s.ch }
func (s *fakeSub) Close() error                     { s.closed.Store(true); return nil }

// queryOnly hides the ChainReader methods of a node.
type queryOnly struct{ n *fakeNode }

func (q queryOnly) FetchMetadata(ctx context.Context) ([]byte, error) { return q.n.FetchMetadata(ctx) }
func (q queryOnly) FetchStorage(ctx context.Context, key, at []byte) ([]byte, bool, error) {
	return q.n.FetchStorage(ctx, key, at)
}
func (q queryOnly) SubmitExtrinsic(ctx context.Context, xt []byte) (transport.Subscription, error) {
	return q.n.SubmitExtrinsic(ctx, xt)
}
func (q queryOnly) RuntimeVersion(ctx context.Context) (transport.RuntimeVersion, error) {
	return q.n.RuntimeVersion(ctx)
}

type fakeSigner struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *fakeSigner) AccountID() []byte { return testbed.Alice }

func (s *fakeSigner) Sign(payload []byte) (codec.Value, error) {
	s.mu.Lock()
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	s.mu.Unlock()
	return codec.Variant("Sr25519", codec.Bytes(bytes.Repeat([]byte{0xee}, 64))), nil
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func open(t *testing.T, tr transport.Transport, opts ...Option) *Session {
	t.Helper()
	s, err := Open(context.Background(), tr, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// accountInfo encodes an AccountInfo with the given nonce and zero
// balances.
func accountInfo(nonce uint32) []byte {
	b := make([]byte, 80)
	b[0], b[1], b[2], b[3] = byte(nonce), byte(nonce>>8), byte(nonce>>16), byte(nonce>>24)
	return b
}

func (n *fakeNode) setAccount(t *testing.T, s *Session, nonce uint32) {
	t.Helper()
	key, err := s.StorageKey("System", "Account", codec.Bytes(testbed.Alice))
	if err != nil {
		t.Fatal(err)
	}
	n.mu.Lock()
	n.storage[storageID(key, nil)] = accountInfo(nonce)
	n.mu.Unlock()
}

const (
	dispatchInfo = "e803000000000000" + "00" + "00"
	success      = "0000" + dispatchInfo
	// ExtrinsicFailed with DispatchError::Module { index: 5, error: 3 }.
	failed = "0001" + "03" + "05" + "03" + dispatchInfo
)

func applyExtrinsic(i int) string {
	return fmt.Sprintf("00%02x000000", i)
}

func transferEvent() string {
	return "0501" + hex.EncodeToString(testbed.Alice) + hex.EncodeToString(testbed.Bob) +
		"0a000000000000000000000000000000"
}

// setBlock stores the block body and its System.Events.
func (n *fakeNode) setBlock(t *testing.T, s *Session, hash []byte, xts [][]byte, records ...string) {
	t.Helper()
	key, err := s.StorageKey("System", "Events")
	if err != nil {
		t.Fatal(err)
	}
	raw := fmt.Sprintf("%02x", len(records)*4)
	for _, r := range records {
		raw += r + "00"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.storage[storageID(key, hash)] = mustHex(t, raw)
	n.blocks[hex.EncodeToString(hash)] = xts
}

func transferCall(t *testing.T, s *Session) *resolver.CallPayload {
	t.Helper()
	call, err := s.BuildCall("Balances", "transfer", codec.Variant("Id", codec.Bytes(testbed.Bob)), codec.Uint(12345))
	if err != nil {
		t.Fatal(err)
	}
	return call
}

func TestOpenPassThrough(t *testing.T) {
	s := open(t, newFakeNode())

	if got := s.RuntimeVersion().SpecVersion; got != 100 {
		t.Errorf("SpecVersion = %d", got)
	}
	if got := len(s.Metadata().Modules()); got != 4 {
		t.Errorf("modules = %d", got)
	}

	def, err := s.Resolve("AccountInfo")
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != types.KindStruct {
		t.Errorf("AccountInfo kind = %s", def.Kind)
	}
	if _, err := s.Resolve("Nope"); !errors.IsKind(err, errors.KindUnknownType) {
		t.Errorf("Resolve(Nope) = %v", err)
	}

	enc, err := s.Encode("Compact<u32>", codec.U32(64))
	if err != nil {
		t.Fatal(err)
	}
	if hex.EncodeToString(enc) != "0101" {
		t.Errorf("Encode = %x", enc)
	}
	v, err := s.Decode("Compact<u32>", enc)
	if err != nil || !v.Equal(codec.U32(64)) {
		t.Errorf("Decode = %s, %v", v, err)
	}

	call := transferCall(t, s)
	want := "0500" + "00" + hex.EncodeToString(testbed.Bob) + "e5c0"
	if hex.EncodeToString(call.Bytes()) != want {
		t.Errorf("call = %x, want %s", call.Bytes(), want)
	}

	if _, err := s.BuildCall("Balances", "transfer", codec.Uint(1)); !errors.IsKind(err, errors.KindArgumentMismatch) {
		t.Errorf("short call = %v", err)
	}
}

func TestStorageAndMapKeys(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	n.setAccount(t, s, 7)

	e, err := s.Storage(context.Background(), "System", "Account", codec.Bytes(testbed.Alice))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := e.Value.Get("nonce").Uint64(); got != 7 {
		t.Errorf("nonce = %d", got)
	}

	entries, err := s.MapKeys(context.Background(), "System", "Account", [][]codec.Value{
		{codec.Bytes(testbed.Alice)},
		{codec.Bytes(testbed.Bob)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Absent || !entries[1].Absent {
		t.Fatalf("entries = %+v", entries)
	}
	if got, _ := entries[1].Value.Get("nonce").Uint64(); got != 0 {
		t.Errorf("default nonce = %d", got)
	}
}

func TestRefresh(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	before := s.Metadata()

	changed, err := s.Refresh(context.Background())
	if err != nil || changed {
		t.Fatalf("Refresh = %v, %v; want unchanged", changed, err)
	}
	if got := n.metadataCalls.Load(); got != 1 {
		t.Errorf("metadata fetches = %d, want 1", got)
	}

	n.mu.Lock()
	n.version.SpecVersion = 101
	n.mu.Unlock()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Refresh(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := n.metadataCalls.Load(); got != 2 {
		t.Errorf("metadata fetches = %d, want 2", got)
	}
	if s.RuntimeVersion().SpecVersion != 101 {
		t.Errorf("SpecVersion = %d", s.RuntimeVersion().SpecVersion)
	}
	if s.Metadata() == before {
		t.Error("metadata was not rebuilt")
	}
	if before.Version != 13 || len(before.Modules()) != 4 {
		t.Error("old snapshot was modified")
	}
}

func TestOpenCustomTypes(t *testing.T) {
	doc := types.NewDocument().Alias("Balance", "u64")
	s := open(t, newFakeNode(), WithCustomTypes(doc))

	call, err := s.BuildCall("Balances", "transfer", codec.Variant("Id", codec.Bytes(testbed.Bob)), codec.U64(1<<40))
	if err != nil {
		t.Fatal(err)
	}
	if call.Len() == 0 {
		t.Error("empty call")
	}
	if _, err := s.Encode("Balance", codec.Uint(1<<40)); err != nil {
		t.Error(err)
	}
	_, err = s.Encode("Balance", codec.Int(new(big.Int).Lsh(big.NewInt(1), 70)))
	if !errors.IsKind(err, errors.KindOverflow) {
		t.Errorf("u64 overflow = %v", err)
	}
}

func TestUnsignedExtrinsic(t *testing.T) {
	s := open(t, newFakeNode())
	call := transferCall(t, s)

	xt, err := s.UnsignedExtrinsic(call)
	if err != nil {
		t.Fatal(err)
	}
	body := "04" + hex.EncodeToString(call.Bytes())
	want := fmt.Sprintf("%02x", (len(body)/2)<<2) + body
	if hex.EncodeToString(xt.Bytes) != want {
		t.Errorf("xt = %x, want %s", xt.Bytes, want)
	}
	if xt.Signed || len(xt.Hash) != 32 {
		t.Errorf("xt = %+v", xt)
	}
}

func TestSignedExtrinsic(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	n.setAccount(t, s, 5)
	signer := &fakeSigner{}
	call := transferCall(t, s)

	xt, err := s.SignedExtrinsic(context.Background(), signer, call, SignOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if xt.Nonce != 5 || !xt.Signed {
		t.Errorf("xt nonce = %d, signed = %v", xt.Nonce, xt.Signed)
	}

	// call ++ era ++ nonce ++ tip ++ spec ++ tx ++ genesis ++ era block
	wantPayload := hex.EncodeToString(call.Bytes()) + "00" + "14" + "00" +
		"64000000" + "01000000" + hex.EncodeToString(genesis) + hex.EncodeToString(genesis)
	if diff := cmp.Diff(wantPayload, hex.EncodeToString(signer.payloads[0])); diff != "" {
		t.Errorf("signing payload mismatch (-want +got):\n%s", diff)
	}

	body := "84" + "00" + hex.EncodeToString(testbed.Alice) +
		"01" + hex.EncodeToString(bytes.Repeat([]byte{0xee}, 64)) +
		"00" + "14" + "00" + hex.EncodeToString(call.Bytes())
	n4 := len(body) / 2
	prefix := fmt.Sprintf("%02x%02x", byte(n4<<2|1), byte(n4>>6))
	if diff := cmp.Diff(prefix+body, hex.EncodeToString(xt.Bytes)); diff != "" {
		t.Errorf("extrinsic mismatch (-want +got):\n%s", diff)
	}

	next, err := s.SignedExtrinsic(context.Background(), signer, call, SignOptions{Tip: 1})
	if err != nil {
		t.Fatal(err)
	}
	if next.Nonce != 6 {
		t.Errorf("second nonce = %d, want 6", next.Nonce)
	}

	fixed := uint64(42)
	pinned, err := s.SignedExtrinsic(context.Background(), signer, call, SignOptions{Nonce: &fixed})
	if err != nil {
		t.Fatal(err)
	}
	if pinned.Nonce != 42 {
		t.Errorf("pinned nonce = %d", pinned.Nonce)
	}
	if got, _ := s.Nonces().Peek(testbed.Alice); got != 7 {
		t.Errorf("registry after pinned nonce = %d, want 7", got)
	}
}

func TestSignedExtrinsicHashesLongPayload(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	n.setAccount(t, s, 0)
	signer := &fakeSigner{}

	call, err := s.BuildCall("System", "remark", codec.Bytes(make([]byte, 300)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SignedExtrinsic(context.Background(), signer, call, SignOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := len(signer.payloads[0]); got != 32 {
		t.Errorf("signed %d bytes, want a 32-byte hash", got)
	}
}

func TestSignedExtrinsicMortal(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	n.setAccount(t, s, 0)
	signer := &fakeSigner{}
	call := transferCall(t, s)

	_, err := s.SignedExtrinsic(context.Background(), signer, call, SignOptions{Era: codec.MortalAt(64, 100)})
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("mortal without anchor = %v", err)
	}
	if got, _ := s.Nonces().Peek(testbed.Alice); got != 0 {
		t.Errorf("nonce consumed by a failed signing: next = %d", got)
	}

	_, err = s.SignedExtrinsic(context.Background(), signer, call, SignOptions{Era: codec.MortalAt(64, 100), EraBlock: otherHash})
	if err != nil {
		t.Fatal(err)
	}
	p := signer.payloads[0]
	if !bytes.HasSuffix(p, append(append([]byte{}, genesis...), otherHash...)) {
		t.Errorf("payload does not end with genesis ++ anchor: %x", p)
	}
}

func TestNonces(t *testing.T) {
	var loads atomic.Int32
	load := func(context.Context) (uint64, error) {
		loads.Add(1)
		return 10, nil
	}
	n := NewNonces()
	acct := []byte("alice")

	var mu sync.Mutex
	var got []uint64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := n.Reserve(context.Background(), acct, load)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	slices.Sort(got)
	for i, v := range got {
		if v != uint64(10+i) {
			t.Fatalf("nonces not unique and contiguous: %v", got)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}

	n.Release(acct, 59, false)
	if v, _ := n.Reserve(context.Background(), acct, load); v != 59 {
		t.Errorf("after releasing the latest = %d, want 59", v)
	}

	n.Release(acct, 20, false)
	if v, _ := n.Reserve(context.Background(), acct, load); v != 10 {
		t.Errorf("after a gap = %d, want reload to 10", v)
	}
	if loads.Load() != 2 {
		t.Errorf("loads = %d, want 2", loads.Load())
	}

	n.Release(acct, 10, true)
	n.Reset(acct)
	if _, ok := n.Peek(acct); ok {
		t.Error("Peek after Reset reports loaded")
	}

	other, err := n.Reserve(context.Background(), []byte("bob"), func(context.Context) (uint64, error) { return 0, nil })
	if err != nil || other != 0 {
		t.Errorf("independent account = %d, %v", other, err)
	}

	boom := fmt.Errorf("boom")
	if _, err := n.Reserve(context.Background(), []byte("carol"), func(context.Context) (uint64, error) { return 0, boom }); err != boom {
		t.Errorf("load error = %v", err)
	}
}

func inBlock(h []byte) transport.Status   { return transport.Status{State: transport.StateInBlock, BlockHash: h} }
func finalized(h []byte) transport.Status { return transport.Status{State: transport.StateFinalized, BlockHash: h} }

func TestSubmitIncluded(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, err := s.UnsignedExtrinsic(transferCall(t, s))
	if err != nil {
		t.Fatal(err)
	}

	n.setBlock(t, s, blockHash, [][]byte{{0x04, 0x00}, xt.Bytes},
		applyExtrinsic(0)+success,
		applyExtrinsic(1)+transferEvent(),
		applyExtrinsic(1)+success,
		"01"+success,
	)
	n.statuses = []transport.Status{{State: transport.StateReady}, inBlock(blockHash)}

	res, err := s.Submit(context.Background(), xt)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeIncluded || res.State != InBlock || res.Finalized {
		t.Fatalf("result = %+v", res)
	}
	if res.ExtrinsicIndex != 1 {
		t.Errorf("ExtrinsicIndex = %d", res.ExtrinsicIndex)
	}
	if len(res.Events) != 2 {
		t.Fatalf("events = %v", res.Events)
	}
	if !res.IsSuccess() || res.DispatchError() != nil {
		t.Errorf("IsSuccess = %v, DispatchError = %v", res.IsSuccess(), res.DispatchError())
	}

	transfer := res.Events[0]
	if transfer.FullName() != "Balances.Transfer" || *transfer.ExtrinsicIndex != 1 || transfer.Phase != PhaseApplyExtrinsic {
		t.Errorf("transfer = %+v", transfer)
	}
	wantArgs := []codec.Value{codec.Bytes(testbed.Alice), codec.Bytes(testbed.Bob), codec.Uint(10)}
	if len(transfer.Args) != 3 {
		t.Fatalf("args = %v", transfer.Args)
	}
	for i := range wantArgs {
		if !transfer.Args[i].Equal(wantArgs[i]) {
			t.Errorf("arg %d = %s", i, transfer.Args[i])
		}
	}

	if !n.subs[0].closed.Load() {
		t.Error("subscription not closed")
	}
	if diff := cmp.Diff(xt.Bytes, n.submitted[0]); diff != "" {
		t.Errorf("submitted mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterEvents(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.setBlock(t, s, blockHash, [][]byte{xt.Bytes},
		applyExtrinsic(0)+transferEvent(),
		applyExtrinsic(0)+transferEvent(),
		applyExtrinsic(0)+success,
	)
	n.statuses = []transport.Status{inBlock(blockHash)}

	res, err := s.Submit(context.Background(), xt)
	if err != nil {
		t.Fatal(err)
	}
	before := n.storageCalls.Load()

	count := func(filter string) int {
		c := 0
		for range FilterEvents(res, filter) {
			c++
		}
		return c
	}
	tests := []struct {
		filter string
		want   int
	}{
		{"", 3},
		{"Balances", 2},
		{"Balances.Transfer", 2},
		{"System", 1},
		{"System.ExtrinsicFailed", 0},
		{"Bal", 0},
	}
	for _, tt := range tests {
		if got := count(tt.filter); got != tt.want {
			t.Errorf("FilterEvents(%q) = %d, want %d", tt.filter, got, tt.want)
		}
		if got := count(tt.filter); got != tt.want {
			t.Errorf("FilterEvents(%q) second pass = %d, want %d", tt.filter, got, tt.want)
		}
	}

	for range FilterEvents(res, "Balances") {
		break
	}
	if n.storageCalls.Load() != before {
		t.Error("filtering performed storage reads")
	}
	if count := len(slices.Collect(FilterEvents(nil, ""))); count != 0 {
		t.Errorf("nil result yielded %d", count)
	}
}

func TestSubmitDispatchError(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.setBlock(t, s, blockHash, [][]byte{xt.Bytes}, applyExtrinsic(0)+failed)
	n.statuses = []transport.Status{inBlock(blockHash)}

	res, err := s.Submit(context.Background(), xt, WithWait(WaitOutcome))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuccess() {
		t.Error("IsSuccess on ExtrinsicFailed")
	}
	de := res.DispatchError()
	if de == nil || de.Module == nil {
		t.Fatalf("DispatchError = %v", de)
	}
	if de.Kind != "Module" || de.Module.String() != "Balances.InsufficientBalance" {
		t.Errorf("DispatchError = %s", de)
	}
}

func TestSubmitOutcomeMissing(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.setBlock(t, s, blockHash, [][]byte{xt.Bytes}, applyExtrinsic(0)+transferEvent())
	n.statuses = []transport.Status{inBlock(blockHash)}

	res, err := s.Submit(context.Background(), xt, WithWait(WaitOutcome))
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if res == nil || res.Outcome != OutcomeIncluded {
		t.Errorf("result = %v", res)
	}

	// WaitInBlock makes no success promise.
	res, err = s.Submit(context.Background(), xt)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuccess() {
		t.Error("IsSuccess without an outcome event")
	}
}

func TestSubmitFinalized(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.setBlock(t, s, blockHash, [][]byte{xt.Bytes}, applyExtrinsic(0)+success)
	n.statuses = []transport.Status{inBlock(blockHash), finalized(blockHash)}

	res, err := s.Submit(context.Background(), xt, WithWait(WaitFinalized))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Finalized || res.State != Finalized || !res.IsSuccess() {
		t.Errorf("result = %+v", res)
	}
	if len(res.History) != 2 {
		t.Errorf("history = %v", res.History)
	}

	// The block's events are cached.
	before := n.storageCalls.Load()
	if _, err := s.BlockEvents(context.Background(), blockHash); err != nil {
		t.Fatal(err)
	}
	if n.storageCalls.Load() != before {
		t.Error("BlockEvents refetched a cached block")
	}
}

func TestSubmitRetracted(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.setBlock(t, s, blockHash, [][]byte{{0x04}}, applyExtrinsic(0)+success)
	n.setBlock(t, s, otherHash, [][]byte{xt.Bytes}, applyExtrinsic(0)+transferEvent(), applyExtrinsic(0)+success)
	n.statuses = []transport.Status{
		inBlock(blockHash),
		{State: transport.StateRetracted, BlockHash: blockHash},
		inBlock(otherHash),
		finalized(otherHash),
	}

	res, err := s.Submit(context.Background(), xt, WithWait(WaitFinalized))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.BlockHash, otherHash) || res.ExtrinsicIndex != 0 || len(res.Events) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitTerminalOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		statuses []transport.Status
		want     Outcome
		reason   string
	}{
		{"invalid", []transport.Status{{State: transport.StateReady}, {State: transport.StateInvalid}}, OutcomeRejected, "invalid"},
		{"usurped", []transport.Status{{State: transport.StateUsurped, Detail: "0xab"}}, OutcomeRejected, "usurped 0xab"},
		{"dropped", []transport.Status{{State: transport.StateBroadcast}, {State: transport.StateDropped}}, OutcomeDropped, ""},
		{"stream ended", []transport.Status{{State: transport.StateReady}}, OutcomeDropped, ""},
		{"finality timeout", []transport.Status{{State: transport.StateFinalityTimeout, BlockHash: blockHash}}, OutcomeDropped, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newFakeNode()
			s := open(t, n)
			n.setAccount(t, s, 3)
			xt, err := s.SignedExtrinsic(context.Background(), &fakeSigner{}, transferCall(t, s), SignOptions{})
			if err != nil {
				t.Fatal(err)
			}
			n.statuses = tt.statuses

			res, err := s.Submit(context.Background(), xt)
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != tt.want || res.Reason != tt.reason {
				t.Errorf("outcome = %s (%q), want %s (%q)", res.Outcome, res.Reason, tt.want, tt.reason)
			}
			if res.Events != nil || res.IsSuccess() {
				t.Errorf("non-included result carries events: %+v", res)
			}
		})
	}
}

func TestSubmitRejectedReleasesNonce(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	n.setAccount(t, s, 3)
	n.statuses = []transport.Status{{State: transport.StateInvalid}}

	res, err := s.SignAndSubmit(context.Background(), &fakeSigner{}, "Balances", "transfer",
		[]codec.Value{codec.Variant("Id", codec.Bytes(testbed.Bob)), codec.Uint(1)}, SignOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got, _ := s.Nonces().Peek(testbed.Alice); got != 3 {
		t.Errorf("next nonce = %d, want 3 after release", got)
	}
}

func TestSubmitTimeout(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.statuses = []transport.Status{{State: transport.StateReady}}
	n.keepOpen = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := s.Submit(ctx, xt)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeTimeout || res.State != Pending {
		t.Errorf("result = %+v, want timeout while pending", res)
	}
	if !n.subs[0].closed.Load() {
		t.Error("subscription not closed after abandoning")
	}
}

func TestSubmitAbandonAfterInclusion(t *testing.T) {
	n := newFakeNode()
	s := open(t, n)
	xt, _ := s.UnsignedExtrinsic(transferCall(t, s))
	n.setBlock(t, s, blockHash, [][]byte{xt.Bytes}, applyExtrinsic(0)+success)
	n.statuses = []transport.Status{inBlock(blockHash)}
	n.keepOpen = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := s.Submit(ctx, xt, WithWait(WaitFinalized))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeIncluded || res.Finalized || !res.IsSuccess() {
		t.Errorf("result = %+v, want included but not finalized", res)
	}
}

func TestSubmitWithoutChainReader(t *testing.T) {
	n := newFakeNode()
	s := open(t, queryOnly{n})
	call := transferCall(t, s)
	xt, _ := s.UnsignedExtrinsic(call)
	n.setBlock(t, s, blockHash, nil, applyExtrinsic(0)+success, applyExtrinsic(1)+failed)
	n.statuses = []transport.Status{inBlock(blockHash)}

	res, err := s.Submit(context.Background(), xt)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExtrinsicIndex != -1 || len(res.Events) != 2 {
		t.Errorf("result = %+v, want all block events", res)
	}

	_, err = s.Submit(context.Background(), xt, WithWait(WaitOutcome))
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("WaitOutcome err = %v, want unsupported", err)
	}

	if _, err := s.SignedExtrinsic(context.Background(), &fakeSigner{}, call, SignOptions{}); !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("signing without genesis = %v, want unsupported", err)
	}
	if _, err := s.SignedExtrinsic(context.Background(), &fakeSigner{}, call, SignOptions{Genesis: genesis}); err != nil {
		t.Errorf("signing with explicit genesis: %v", err)
	}
}

func TestDecodeEvents(t *testing.T) {
	s := open(t, newFakeNode())

	recs, err := s.DecodeEvents(mustHex(t, "08"+
		applyExtrinsic(2)+transferEvent()+"00"+
		"02"+"0101"+"00"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].ExtrinsicIndex == nil || *recs[0].ExtrinsicIndex != 2 {
		t.Errorf("first phase = %s %v", recs[0].Phase, recs[0].ExtrinsicIndex)
	}
	if recs[1].Phase != PhaseInitialization || recs[1].ExtrinsicIndex != nil {
		t.Errorf("second phase = %s", recs[1].Phase)
	}
	if recs[1].FullName() != "Utility.BatchCompleted" || recs[1].Args != nil {
		t.Errorf("second = %s", recs[1])
	}
	if got := recs[0].String(); got == "" {
		t.Error("empty String")
	}

	if _, err := s.DecodeEvents(mustHex(t, "04"+applyExtrinsic(0)+"0900")); err == nil {
		t.Error("unknown module decoded")
	}
}

package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/subscript/errors"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{`"future"`, Status{State: StateFuture}, false},
		{`"ready"`, Status{State: StateReady}, false},
		{`"dropped"`, Status{State: StateDropped}, false},
		{`"invalid"`, Status{State: StateInvalid}, false},
		{`{"broadcast":["peer1","peer2"]}`, Status{State: StateBroadcast, Detail: `["peer1","peer2"]`}, false},
		{`{"inBlock":"0x0102"}`, Status{State: StateInBlock, BlockHash: []byte{1, 2}}, false},
		{`{"finalized":"0xff"}`, Status{State: StateFinalized, BlockHash: []byte{0xff}}, false},
		{`{"retracted":"0x00"}`, Status{State: StateRetracted, BlockHash: []byte{0}}, false},
		{`{"usurped":"0xab"}`, Status{State: StateUsurped, Detail: "0xab"}, false},
		{`"pending"`, Status{}, true},
		{`{"inBlock":"zz"}`, Status{}, true},
		{`{"inBlock":"0x01","ready":null}`, Status{}, true},
		{`42`, Status{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseStatus(%s) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%s): %v", tt.raw, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseStatus(%s) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateFinalized:       true,
		StateFinalityTimeout: true,
		StateUsurped:         true,
		StateDropped:         true,
		StateInvalid:         true,
	}
	for s := StateFuture; s <= StateInvalid; s++ {
		if s.Terminal() != terminal[s] {
			t.Errorf("%s.Terminal() = %v", s, s.Terminal())
		}
	}
	if State(99).String() != "unknown" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}

// fakeCaller answers from a table of raw JSON results keyed by method.
type fakeCaller struct {
	results map[string]string
	errs    map[string]error
	calls   []string
	params  [][]any
}

func (f *fakeCaller) Call(_ context.Context, method string, params []any, result any) error {
	f.calls = append(f.calls, method)
	f.params = append(f.params, params)
	if err := f.errs[method]; err != nil {
		return err
	}
	msg := Message{Result: json.RawMessage(f.results[method])}
	return msg.Unmarshal(result)
}

func TestNodeQueries(t *testing.T) {
	f := &fakeCaller{results: map[string]string{
		MethodGetMetadata:       `"0x6d657461"`,
		MethodGetStorage:        `"0x2a00"`,
		MethodGetRuntimeVersion: `{"specName":"node","implName":"node","authoringVersion":1,"specVersion":268,"implVersion":0,"transactionVersion":2}`,
		MethodGetBlockHash:      `"0x0a0b"`,
		MethodGetBlock:          `{"block":{"header":{},"extrinsics":["0x0401","0x0802"]}}`,
	}}
	n := Node{Caller: f}
	ctx := context.Background()

	blob, err := n.FetchMetadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != "meta" {
		t.Errorf("FetchMetadata = %q", blob)
	}

	v, ok, err := n.FetchStorage(ctx, []byte{1}, []byte{2})
	if err != nil || !ok {
		t.Fatalf("FetchStorage = %v, %v, %v", v, ok, err)
	}
	if diff := cmp.Diff([]byte{0x2a, 0}, v); diff != "" {
		t.Errorf("FetchStorage mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"0x01", "0x02"}, f.params[len(f.params)-1]); diff != "" {
		t.Errorf("FetchStorage params mismatch (-want +got):\n%s", diff)
	}

	rv, err := n.RuntimeVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := RuntimeVersion{SpecName: "node", ImplName: "node", AuthoringVersion: 1, SpecVersion: 268, TransactionVersion: 2}
	if diff := cmp.Diff(want, rv); diff != "" {
		t.Errorf("RuntimeVersion mismatch (-want +got):\n%s", diff)
	}

	gh, err := n.GenesisHash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x0a, 0x0b}, gh); diff != "" {
		t.Errorf("GenesisHash mismatch (-want +got):\n%s", diff)
	}

	xts, err := n.BlockExtrinsics(ctx, gh)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]byte{{4, 1}, {8, 2}}, xts); diff != "" {
		t.Errorf("BlockExtrinsics mismatch (-want +got):\n%s", diff)
	}
}

func TestNodeStorageAbsent(t *testing.T) {
	f := &fakeCaller{results: map[string]string{MethodGetStorage: `null`}}
	v, ok, err := Node{Caller: f}.FetchStorage(context.Background(), []byte{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok || v != nil {
		t.Errorf("FetchStorage = %v, %v; want absent", v, ok)
	}
	if len(f.params[0]) != 1 {
		t.Errorf("params = %v, want key only", f.params[0])
	}
}

func TestNodeErrorsAreTransport(t *testing.T) {
	rpcErr := &RPCError{Code: -32000, Message: "boom"}
	f := &fakeCaller{
		results: map[string]string{MethodGetMetadata: `"0xzz"`},
		errs:    map[string]error{MethodGetStorage: rpcErr},
	}
	n := Node{Caller: f}

	_, _, err := n.FetchStorage(context.Background(), []byte{1}, nil)
	if !errors.IsKind(err, errors.KindTransport) {
		t.Errorf("FetchStorage error = %v, want transport kind", err)
	}
	var target *RPCError
	if !stderrors.As(err, &target) || target.Code != -32000 {
		t.Errorf("FetchStorage error does not wrap RPCError: %v", err)
	}

	if _, err := n.FetchMetadata(context.Background()); !errors.IsKind(err, errors.KindTransport) {
		t.Errorf("FetchMetadata bad hex error = %v", err)
	}
}

func TestMessageUnmarshal(t *testing.T) {
	var s *string
	if err := (&Message{}).Unmarshal(&s); err != nil || s != nil {
		t.Errorf("empty result = %v, %v", s, err)
	}
	err := (&Message{Error: &RPCError{Code: 1, Message: "x"}}).Unmarshal(&s)
	if err == nil || err.Error() != "rpc error 1: x" {
		t.Errorf("error = %v", err)
	}
	if got := SubscriptionID(json.RawMessage(`"abc"`)); got != "abc" {
		t.Errorf("SubscriptionID string = %q", got)
	}
	if got := SubscriptionID(json.RawMessage(`17`)); got != "17" {
		t.Errorf("SubscriptionID number = %q", got)
	}
}

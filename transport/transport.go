// Package transport defines the node collaborator contract: fetching
// metadata, runtime version and storage, and submitting extrinsics with a
// stream of lifecycle updates.
//
// Implementations live in the wsrpc (JSON-RPC over websocket, with
// subscriptions) and httprpc (JSON-RPC over HTTP, queries only)
// subpackages. Both share Node, which implements the query methods on top
// of any JSON-RPC Caller.
package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Transport is what the dispatch layer needs from a node.
type Transport interface {
	FetchMetadata(ctx context.Context) ([]byte, error)
	// FetchStorage reads one key at block at, or at the best block when at
	// is nil. Absent keys return ok false and no error.
	FetchStorage(ctx context.Context, key, at []byte) (value []byte, ok bool, err error)
	SubmitExtrinsic(ctx context.Context, xt []byte) (Subscription, error)
	RuntimeVersion(ctx context.Context) (RuntimeVersion, error)
}

// ChainReader is implemented by transports that can read blocks.
type ChainReader interface {
	GenesisHash(ctx context.Context) ([]byte, error)
	// BlockExtrinsics returns the encoded extrinsics of a block in order.
	BlockExtrinsics(ctx context.Context, blockHash []byte) ([][]byte, error)
}

// Subscription streams the status of one submitted extrinsic. Updates is
// closed after a terminal status or when the connection ends.
type Subscription interface {
	Updates() <-chan Status
	Close() error
}

// State is a transaction pool status as reported by the node.
type State uint8

const (
	StateFuture State = iota
	StateReady
	StateBroadcast
	StateInBlock
	StateRetracted
	StateFinalityTimeout
	StateFinalized
	StateUsurped
	StateDropped
	StateInvalid
)

var stateNames = [...]string{
	StateFuture:          "future",
	StateReady:           "ready",
	StateBroadcast:       "broadcast",
	StateInBlock:         "inBlock",
	StateRetracted:       "retracted",
	StateFinalityTimeout: "finalityTimeout",
	StateFinalized:       "finalized",
	StateUsurped:         "usurped",
	StateDropped:         "dropped",
	StateInvalid:         "invalid",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further updates follow s.
func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateFinalityTimeout, StateUsurped, StateDropped, StateInvalid:
		return true
	}
	return false
}

// Status is one lifecycle update. BlockHash is set for InBlock, Retracted,
// FinalityTimeout and Finalized; Detail carries the usurping hash or the
// broadcast peers.
type Status struct {
	State     State
	BlockHash []byte
	Detail    string
}

// ParseStatus decodes an author_extrinsicUpdate payload: either a bare
// state name or a one-key object {state: detail}.
func ParseStatus(raw json.RawMessage) (Status, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		st, ok := stateByName(name)
		if !ok {
			return Status{}, fmt.Errorf("unknown transaction status %q", name)
		}
		return Status{State: st}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Status{}, fmt.Errorf("transaction status: %w", err)
	}
	if len(obj) != 1 {
		return Status{}, fmt.Errorf("transaction status has %d keys", len(obj))
	}
	for k, v := range obj {
		st, ok := stateByName(k)
		if !ok {
			return Status{}, fmt.Errorf("unknown transaction status %q", k)
		}
		out := Status{State: st}
		switch st {
		case StateInBlock, StateRetracted, StateFinalityTimeout, StateFinalized:
			var h string
			if err := json.Unmarshal(v, &h); err != nil {
				return Status{}, fmt.Errorf("%s block hash: %w", k, err)
			}
			b, err := DecodeHex(h)
			if err != nil {
				return Status{}, fmt.Errorf("%s block hash: %w", k, err)
			}
			out.BlockHash = b
		default:
			out.Detail = strings.Trim(string(v), `"`)
		}
		return out, nil
	}
	panic("unreachable")
}

func stateByName(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return 0, false
}

// RuntimeVersion identifies the runtime a node is executing.
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	AuthoringVersion   uint32 `json:"authoringVersion"`
	SpecVersion        uint32 `json:"specVersion"`
	ImplVersion        uint32 `json:"implVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

func (v RuntimeVersion) String() string {
	return fmt.Sprintf("%s-%d (tx %d)", v.SpecName, v.SpecVersion, v.TransactionVersion)
}

// EncodeHex renders bytes as 0x-prefixed hex.
func EncodeHex(b []byte) string { return "0x" + hex.EncodeToString(b) }

// DecodeHex parses 0x-prefixed or bare hex.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

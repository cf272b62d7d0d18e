package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wippyai/subscript/errors"
)

// JSON-RPC methods of a Substrate node.
const (
	MethodGetMetadata       = "state_getMetadata"
	MethodGetStorage        = "state_getStorage"
	MethodGetRuntimeVersion = "state_getRuntimeVersion"
	MethodGetBlockHash      = "chain_getBlockHash"
	MethodGetBlock          = "chain_getBlock"
	MethodSubmitExtrinsic   = "author_submitExtrinsic"
	MethodSubmitAndWatch    = "author_submitAndWatchExtrinsic"
	MethodUnwatch           = "author_unwatchExtrinsic"
	NotifyExtrinsicUpdate   = "author_extrinsicUpdate"
)

// Caller performs one JSON-RPC request and unmarshals its result.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// NewRequest fills in the protocol version and normalizes nil params.
func NewRequest(id uint64, method string, params []any) Request {
	if params == nil {
		params = []any{}
	}
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// Message is any frame a node sends: a response (ID set) or a subscription
// notification (Method set).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *Notification   `json:"params,omitempty"`
}

// Notification is the params object of a subscription message.
type Notification struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// SubscriptionID returns the id as a string whether the node sent it as a
// JSON string or number.
func (n *Notification) SubscriptionID() string {
	return SubscriptionID(n.Subscription)
}

// SubscriptionID normalizes a subscription id result.
func SubscriptionID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Unmarshal decodes a response result into v. A missing error and result
// is treated as JSON null.
func (m *Message) Unmarshal(v any) error {
	if m.Error != nil {
		return m.Error
	}
	if v == nil {
		return nil
	}
	raw := m.Result
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return json.Unmarshal(raw, v)
}

// Node implements the query methods of Transport and ChainReader on top of
// a Caller.
type Node struct {
	Caller Caller
}

func (n Node) call(ctx context.Context, method string, params []any, result any) error {
	if err := n.Caller.Call(ctx, method, params, result); err != nil {
		return errors.Transport(method, err)
	}
	return nil
}

// FetchMetadata returns the SCALE metadata blob of the best block.
func (n Node) FetchMetadata(ctx context.Context) ([]byte, error) {
	var s string
	if err := n.call(ctx, MethodGetMetadata, nil, &s); err != nil {
		return nil, err
	}
	b, err := DecodeHex(s)
	if err != nil {
		return nil, errors.Transport(MethodGetMetadata, err)
	}
	return b, nil
}

// FetchStorage reads a raw storage value. A JSON null result means the
// key is absent.
func (n Node) FetchStorage(ctx context.Context, key, at []byte) ([]byte, bool, error) {
	params := []any{EncodeHex(key)}
	if at != nil {
		params = append(params, EncodeHex(at))
	}
	var s *string
	if err := n.call(ctx, MethodGetStorage, params, &s); err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, nil
	}
	b, err := DecodeHex(*s)
	if err != nil {
		return nil, false, errors.Transport(MethodGetStorage, err)
	}
	return b, true, nil
}

// RuntimeVersion returns the version of the best block's runtime.
func (n Node) RuntimeVersion(ctx context.Context) (RuntimeVersion, error) {
	var v RuntimeVersion
	err := n.call(ctx, MethodGetRuntimeVersion, nil, &v)
	return v, err
}

// GenesisHash returns the hash of block zero.
func (n Node) GenesisHash(ctx context.Context) ([]byte, error) {
	var s string
	if err := n.call(ctx, MethodGetBlockHash, []any{0}, &s); err != nil {
		return nil, err
	}
	b, err := DecodeHex(s)
	if err != nil {
		return nil, errors.Transport(MethodGetBlockHash, err)
	}
	return b, nil
}

// BlockExtrinsics returns the encoded extrinsics of a block.
func (n Node) BlockExtrinsics(ctx context.Context, blockHash []byte) ([][]byte, error) {
	var res struct {
		Block struct {
			Extrinsics []string `json:"extrinsics"`
		} `json:"block"`
	}
	if err := n.call(ctx, MethodGetBlock, []any{EncodeHex(blockHash)}, &res); err != nil {
		return nil, err
	}
	out := make([][]byte, len(res.Block.Extrinsics))
	for i, s := range res.Block.Extrinsics {
		b, err := DecodeHex(s)
		if err != nil {
			return nil, errors.Transport(MethodGetBlock, fmt.Errorf("extrinsic %d: %w", i, err))
		}
		out[i] = b
	}
	return out, nil
}

// SubmitOnly submits an extrinsic without watching it and returns its
// hash.
func (n Node) SubmitOnly(ctx context.Context, xt []byte) ([]byte, error) {
	var s string
	if err := n.call(ctx, MethodSubmitExtrinsic, []any{EncodeHex(xt)}, &s); err != nil {
		return nil, err
	}
	b, err := DecodeHex(s)
	if err != nil {
		return nil, errors.Transport(MethodSubmitExtrinsic, err)
	}
	return b, nil
}

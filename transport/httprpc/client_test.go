package httprpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/transport"
)

func rpcServer(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n <= failFirst {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req transport.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case transport.MethodGetStorage:
			resp["result"] = "0x0500"
		case transport.MethodSubmitExtrinsic:
			resp["result"] = "0xabcd"
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchStorageRetries(t *testing.T) {
	srv, hits := rpcServer(t, 2)
	c := New(srv.URL,
		WithRetryMax(3),
		WithRetryWait(time.Millisecond, 2*time.Millisecond),
		WithLogger(zaptest.NewLogger(t)))

	v, ok, err := c.FetchStorage(context.Background(), []byte{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("FetchStorage reported absent")
	}
	if diff := cmp.Diff([]byte{5, 0}, v); diff != "" {
		t.Errorf("FetchStorage mismatch (-want +got):\n%s", diff)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	srv, _ := rpcServer(t, 100)
	c := New(srv.URL, WithRetryMax(1), WithRetryWait(time.Millisecond, time.Millisecond))

	_, _, err := c.FetchStorage(context.Background(), []byte{1}, nil)
	if !errors.IsKind(err, errors.KindTransport) {
		t.Errorf("error = %v, want transport kind", err)
	}
}

func TestRPCError(t *testing.T) {
	srv, _ := rpcServer(t, 0)
	c := New(srv.URL)

	_, err := c.RuntimeVersion(context.Background())
	if !errors.IsKind(err, errors.KindTransport) {
		t.Fatalf("error = %v, want transport kind", err)
	}
	e, _ := errors.As(err)
	if e.Detail != transport.MethodGetRuntimeVersion {
		t.Errorf("Detail = %q", e.Detail)
	}
}

func TestSubmit(t *testing.T) {
	srv, _ := rpcServer(t, 0)
	c := New(srv.URL)

	if _, err := c.SubmitExtrinsic(context.Background(), []byte{1}); !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("SubmitExtrinsic error = %v, want unsupported", err)
	}

	hash, err := c.SubmitOnly(context.Background(), []byte{1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0xab, 0xcd}, hash); diff != "" {
		t.Errorf("SubmitOnly mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitNotRetried(t *testing.T) {
	srv, hits := rpcServer(t, 1)
	c := New(srv.URL, WithRetryMax(3), WithRetryWait(time.Millisecond, time.Millisecond))

	if _, err := c.SubmitOnly(context.Background(), []byte{1}); err == nil {
		t.Fatal("SubmitOnly succeeded after a failed attempt")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

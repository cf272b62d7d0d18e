package dispatch

import (
	"context"
	"sync"
)

// NonceLoader reads an account's next nonce from the chain.
type NonceLoader func(ctx context.Context) (uint64, error)

// Nonces hands out per-account sequence numbers. Reads from the chain and
// reservations happen under one per-account lock, so concurrent signers
// for the same account never receive the same nonce.
type Nonces struct {
	mu       sync.Mutex
	accounts map[string]*accountNonce
}

type accountNonce struct {
	mu     sync.Mutex
	loaded bool
	next   uint64
}

// NewNonces returns an empty registry.
func NewNonces() *Nonces {
	return &Nonces{accounts: make(map[string]*accountNonce)}
}

func (n *Nonces) account(id []byte) *accountNonce {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.accounts[string(id)]
	if !ok {
		a = &accountNonce{}
		n.accounts[string(id)] = a
	}
	return a
}

// Reserve returns the next nonce for account and advances the counter.
// The first reservation, and the first after Reset, calls load.
func (n *Nonces) Reserve(ctx context.Context, account []byte, load NonceLoader) (uint64, error) {
	a := n.account(account)
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		v, err := load(ctx)
		if err != nil {
			return 0, err
		}
		a.next, a.loaded = v, true
	}
	v := a.next
	a.next++
	return v, nil
}

// Release returns a reservation. A used nonce is kept. An unused one is
// handed out again if it was the latest reservation; otherwise the
// counter has a gap and the next Reserve reloads from the chain.
func (n *Nonces) Release(account []byte, nonce uint64, used bool) {
	if used {
		return
	}
	a := n.account(account)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return
	}
	if a.next == nonce+1 {
		a.next = nonce
		return
	}
	a.loaded = false
}

// Reset forgets the cached counter of account.
func (n *Nonces) Reset(account []byte) {
	a := n.account(account)
	a.mu.Lock()
	a.loaded = false
	a.mu.Unlock()
}

// Peek returns the next nonce without reserving it.
func (n *Nonces) Peek(account []byte) (uint64, bool) {
	a := n.account(account)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next, a.loaded
}

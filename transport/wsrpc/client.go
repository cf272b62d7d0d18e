// Package wsrpc is a JSON-RPC over websocket transport with subscription
// support.
package wsrpc

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/transport"
)

// ErrClosed is returned by calls on a closed connection.
var ErrClosed = stderrors.New("wsrpc: connection closed")

const updateBuffer = 16

// Option configures a Client.
type Option func(*options)

type options struct {
	dialer *websocket.Dialer
	header http.Header
	logger *zap.Logger
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithLogger sets the connection logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Client is a websocket connection to one node. It is safe for concurrent
// use.
type Client struct {
	transport.Node

	conn   *websocket.Conn
	logger *zap.Logger
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	subs    map[string]*subscription

	closing  atomic.Bool
	closed   chan struct{}
	loopDone chan struct{}
	err      error
}

type pendingCall struct {
	resp chan *transport.Message
	// sub is registered under the result id before the response is
	// delivered, so no notification can arrive unrouted.
	sub *subscription
	// abandoned marks a subscribing call whose caller gave up; the node
	// still creates the subscription, so the read loop unwatches it.
	abandoned bool
}

var _ transport.Transport = (*Client)(nil)
var _ transport.ChainReader = (*Client)(nil)

// Dial connects to a node at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{dialer: websocket.DefaultDialer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	conn, _, err := o.dialer.DialContext(ctx, url, o.header)
	if err != nil {
		return nil, errors.Transport("dial "+url, err)
	}
	c := &Client{
		conn:     conn,
		logger:   o.logger.With(zap.String("url", url)),
		pending:  make(map[uint64]*pendingCall),
		subs:     make(map[string]*subscription),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.Node = transport.Node{Caller: c}
	go c.readLoop()
	c.logger.Debug("connected")
	return c, nil
}

// Call implements transport.Caller.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	msg, err := c.roundTrip(ctx, method, params, nil)
	if err != nil {
		return err
	}
	return msg.Unmarshal(result)
}

func (c *Client) roundTrip(ctx context.Context, method string, params []any, sub *subscription) (*transport.Message, error) {
	id := c.nextID.Add(1)
	p := &pendingCall{resp: make(chan *transport.Message, 1), sub: sub}

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return nil, c.closeErr()
	default:
	}
	c.pending[id] = p
	c.mu.Unlock()

	if err := c.write(transport.NewRequest(id, method, params)); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case msg := <-p.resp:
		return msg, nil
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.closeErr()
	}
}

func (c *Client) write(req transport.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(req)
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) abandon(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return
	}
	if p.sub == nil {
		delete(c.pending, id)
		return
	}
	p.abandoned = true
}

func (c *Client) unwatch(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ok bool
	err := c.Call(ctx, transport.MethodUnwatch, []any{id}, &ok)
	if stderrors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// SubmitExtrinsic submits xt and watches its lifecycle.
func (c *Client) SubmitExtrinsic(ctx context.Context, xt []byte) (transport.Subscription, error) {
	sub := &subscription{
		c:       c,
		updates: make(chan transport.Status, updateBuffer),
		done:    make(chan struct{}),
	}
	msg, err := c.roundTrip(ctx, transport.MethodSubmitAndWatch, []any{transport.EncodeHex(xt)}, sub)
	if err != nil {
		// The response may have registered sub just before ctx ended.
		_ = sub.Close()
		return nil, errors.Transport(transport.MethodSubmitAndWatch, err)
	}
	if msg.Error != nil {
		return nil, errors.Transport(transport.MethodSubmitAndWatch, msg.Error)
	}
	c.logger.Debug("watching extrinsic", zap.String("subscription", sub.id))
	return sub, nil
}

// readLoop owns every update channel: only it sends on or closes them.
func (c *Client) readLoop() {
	defer close(c.loopDone)
	for {
		var msg transport.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		if msg.Method != "" {
			c.notify(&msg)
			continue
		}

		c.mu.Lock()
		p, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		if ok && p.sub != nil && msg.Error == nil {
			id := transport.SubscriptionID(msg.Result)
			if p.abandoned {
				c.logger.Debug("unwatching abandoned subscription", zap.String("subscription", id))
				go func() {
					if err := c.unwatch(id); err != nil {
						c.logger.Warn("unwatch failed", zap.String("subscription", id), zap.Error(err))
					}
				}()
			} else {
				p.sub.id = id
				c.subs[id] = p.sub
			}
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("response for unknown request", zap.Uint64("id", msg.ID))
			continue
		}
		p.resp <- &msg
	}
}

func (c *Client) notify(msg *transport.Message) {
	if msg.Method != transport.NotifyExtrinsicUpdate || msg.Params == nil {
		c.logger.Debug("ignoring notification", zap.String("method", msg.Method))
		return
	}
	id := msg.Params.SubscriptionID()
	st, err := transport.ParseStatus(msg.Params.Result)
	if err != nil {
		c.logger.Warn("bad extrinsic update", zap.String("subscription", id), zap.Error(err))
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok && st.State.Terminal() {
		delete(c.subs, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case sub.updates <- st:
	case <-sub.done:
	}
	if st.State.Terminal() {
		close(sub.updates)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	c.err = err
	close(c.closed)
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.pending = make(map[uint64]*pendingCall)
	c.mu.Unlock()

	for _, s := range subs {
		close(s.updates)
	}
	if c.closing.Load() {
		c.logger.Debug("connection closed")
		return
	}
	c.logger.Warn("connection lost", zap.Error(err))
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing.Load() || c.err == nil || websocket.IsCloseError(c.err, websocket.CloseNormalClosure) {
		return ErrClosed
	}
	return stderrors.Join(ErrClosed, c.err)
}

// Close ends the connection. Open subscriptions see their update channels
// closed.
func (c *Client) Close() error {
	if c.closing.Swap(true) {
		<-c.loopDone
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	<-c.loopDone
	return err
}

type subscription struct {
	c       *Client
	id      string
	updates chan transport.Status
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Updates() <-chan transport.Status { return s.updates }

// Close stops routing updates and asks the node to unwatch. The update
// channel is left open if the subscription had not yet terminated.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.c.mu.Lock()
		_, active := s.c.subs[s.id]
		delete(s.c.subs, s.id)
		s.c.mu.Unlock()
		close(s.done)

		if !active {
			return
		}
		err = s.c.unwatch(s.id)
	})
	return err
}

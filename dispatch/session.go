// Package dispatch is the session-level façade over a node: it holds the
// current metadata and runtime version, assembles and submits extrinsics,
// tracks per-account nonces and decodes the events of included
// extrinsics.
//
// A Session is explicit state; several sessions against different nodes
// are independent. Codec and resolver operations read an immutable
// snapshot and may run concurrently with Refresh, which swaps in a new
// snapshot when the runtime upgrades.
package dispatch

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/resolver"
	"github.com/wippyai/subscript/transport"
	"github.com/wippyai/subscript/types"
)

const defaultEventCacheSize = 64

// Option configures a Session.
type Option func(*config)

type config struct {
	doc          *types.Document
	cacheSize    int
	logger       *zap.Logger
	resolverOpts []resolver.Option
}

// WithCustomTypes merges doc over the types derived from metadata.
func WithCustomTypes(doc *types.Document) Option {
	return func(c *config) { c.doc = doc }
}

// WithEventCacheSize sets how many blocks of decoded events are kept.
func WithEventCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithResolverOptions passes options to every resolver the session builds.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(c *config) { c.resolverOpts = append(c.resolverOpts, opts...) }
}

// snapshot is the state derived from one runtime version. It is never
// mutated after construction.
type snapshot struct {
	md      *metadata.Metadata
	res     *resolver.Resolver
	version transport.RuntimeVersion
}

// Session is a connection-independent view of one node's runtime.
type Session struct {
	t      transport.Transport
	cfg    config
	logger *zap.Logger

	snap    atomic.Pointer[snapshot]
	refresh singleflight.Group

	genesis atomic.Pointer[[]byte]
	events  *lru.Cache[string, []EventRecord]
	nonces  *Nonces
}

// Open fetches the runtime version and metadata from t and builds the
// first snapshot.
func Open(ctx context.Context, t transport.Transport, opts ...Option) (*Session, error) {
	cfg := config{cacheSize: defaultEventCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}

	cache, err := lru.New[string, []EventRecord](max(cfg.cacheSize, 1))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindInvalidInput, err, "event cache size")
	}
	s := &Session{
		t:      t,
		cfg:    cfg,
		logger: cfg.logger,
		events: cache,
		nonces: NewNonces(),
	}

	rv, err := t.RuntimeVersion(ctx)
	if err != nil {
		return nil, transportErr("runtime version", err)
	}
	snap, err := s.load(ctx, rv)
	if err != nil {
		return nil, err
	}
	s.snap.Store(snap)
	s.logger.Info("session opened",
		zap.String("runtime", rv.String()),
		zap.Uint8("metadata", snap.md.Version),
		zap.Int("modules", len(snap.md.Modules())))
	return s, nil
}

func (s *Session) load(ctx context.Context, rv transport.RuntimeVersion) (*snapshot, error) {
	blob, err := s.t.FetchMetadata(ctx)
	if err != nil {
		return nil, transportErr("metadata", err)
	}
	md, err := metadata.Build(blob, s.cfg.doc)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		md:      md,
		res:     resolver.New(md, s.cfg.resolverOpts...),
		version: rv,
	}, nil
}

// Refresh re-reads the runtime version and rebuilds the snapshot when it
// changed. Concurrent calls share one rebuild. It reports whether a new
// snapshot was installed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	v, err, _ := s.refresh.Do("refresh", func() (any, error) {
		rv, err := s.t.RuntimeVersion(ctx)
		if err != nil {
			return false, transportErr("runtime version", err)
		}
		cur := s.snap.Load()
		if cur.version.SpecVersion == rv.SpecVersion && cur.version.TransactionVersion == rv.TransactionVersion {
			return false, nil
		}
		next, err := s.load(ctx, rv)
		if err != nil {
			return false, err
		}
		s.snap.Store(next)
		s.logger.Info("runtime upgraded",
			zap.String("from", cur.version.String()),
			zap.String("to", rv.String()))
		return true, nil
	})
	return v.(bool), err
}

func (s *Session) current() *snapshot { return s.snap.Load() }

// Metadata returns the current metadata.
func (s *Session) Metadata() *metadata.Metadata { return s.current().md }

// Resolver returns the current resolver.
func (s *Session) Resolver() *resolver.Resolver { return s.current().res }

// Codec returns the current codec.
func (s *Session) Codec() *codec.Codec { return s.current().md.Codec() }

// RuntimeVersion returns the version the current snapshot was built for.
func (s *Session) RuntimeVersion() transport.RuntimeVersion { return s.current().version }

// Transport returns the session's transport.
func (s *Session) Transport() transport.Transport { return s.t }

// Nonces returns the session's nonce registry.
func (s *Session) Nonces() *Nonces { return s.nonces }

// Resolve returns the descriptor registered for name.
func (s *Session) Resolve(name string) (*types.TypeDef, error) {
	return s.current().md.Registry().Resolve(name)
}

// Encode encodes v as typeName.
func (s *Session) Encode(typeName string, v codec.Value) ([]byte, error) {
	return s.Codec().Encode(typeName, v)
}

// Decode decodes data as typeName. The whole input must be consumed.
func (s *Session) Decode(typeName string, data []byte) (codec.Value, error) {
	return s.Codec().DecodeAll(typeName, data)
}

// BuildCall encodes a call with positional arguments.
func (s *Session) BuildCall(module, function string, args ...codec.Value) (*resolver.CallPayload, error) {
	return s.Resolver().BuildCall(module, function, args...)
}

// BuildCallNamed encodes a call from a struct of named arguments.
func (s *Session) BuildCallNamed(module, function string, args codec.Value) (*resolver.CallPayload, error) {
	return s.Resolver().BuildCallNamed(module, function, args)
}

// StorageKey builds the key of a storage item.
func (s *Session) StorageKey(module, item string, keys ...codec.Value) ([]byte, error) {
	return s.Resolver().StorageKey(module, item, keys...)
}

// DecodeStorage decodes a raw value of a storage item.
func (s *Session) DecodeStorage(module, item string, raw []byte) (codec.Value, error) {
	return s.Resolver().DecodeStorage(module, item, raw)
}

// Storage fetches and decodes one storage entry at the best block.
func (s *Session) Storage(ctx context.Context, module, item string, keys ...codec.Value) (resolver.StorageEntry, error) {
	return s.Resolver().Fetch(ctx, s.t, module, item, keys...)
}

// StorageAt fetches and decodes one storage entry at block at.
func (s *Session) StorageAt(ctx context.Context, at []byte, module, item string, keys ...codec.Value) (resolver.StorageEntry, error) {
	return s.Resolver().FetchAt(ctx, s.t, at, module, item, keys...)
}

// MapKeys looks up several keys of a map item. Absent keys are reported in
// place.
func (s *Session) MapKeys(ctx context.Context, module, item string, keyTuples [][]codec.Value) ([]resolver.StorageEntry, error) {
	return s.Resolver().MapKeys(ctx, s.t, module, item, keyTuples)
}

// GenesisHash returns the chain's genesis hash, read once from a
// transport implementing transport.ChainReader.
func (s *Session) GenesisHash(ctx context.Context) ([]byte, error) {
	if g := s.genesis.Load(); g != nil {
		return *g, nil
	}
	cr, ok := s.t.(transport.ChainReader)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseDispatch, "genesis hash without a chain reader")
	}
	g, err := cr.GenesisHash(ctx)
	if err != nil {
		return nil, transportErr("genesis hash", err)
	}
	s.genesis.Store(&g)
	return g, nil
}

// transportErr keeps structured errors and wraps anything else.
func transportErr(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Transport(op, err)
}

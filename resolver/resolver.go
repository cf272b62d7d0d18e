// Package resolver turns module and item names into call payloads and
// storage keys, and decodes storage values, using runtime metadata.
package resolver

import (
	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/metadata"
)

const defaultConcurrency = 8

// Resolver is bound to one metadata snapshot. It is safe for concurrent
// use.
type Resolver struct {
	md          *metadata.Metadata
	codec       *codec.Codec
	hashers     *hashing.Set
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHashers replaces the default storage hasher set.
func WithHashers(s *hashing.Set) Option {
	return func(r *Resolver) {
		if s != nil {
			r.hashers = s
		}
	}
}

// WithConcurrency bounds the number of in-flight lookups in MapKeys.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New returns a resolver over md.
func New(md *metadata.Metadata, opts ...Option) *Resolver {
	r := &Resolver{
		md:          md,
		codec:       md.Codec(),
		hashers:     hashing.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metadata returns the snapshot the resolver is bound to.
func (r *Resolver) Metadata() *metadata.Metadata { return r.md }

// Codec returns the codec over the snapshot's registry.
func (r *Resolver) Codec() *codec.Codec { return r.codec }

// prefixPath puts elem in front of the path of a structured error.
func prefixPath(err error, elem string) error {
	if e, ok := errors.As(err); ok {
		e.Path = append([]string{elem}, e.Path...)
	}
	return err
}

package resolver

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/metadata"
)

// Fetcher reads raw storage from a node. A nil at means the best block.
// Absent keys return ok false and no error.
type Fetcher interface {
	FetchStorage(ctx context.Context, key, at []byte) (value []byte, ok bool, err error)
}

// StorageEntry is the result of one storage lookup. An absent entry has
// Absent set; for entries with a default modifier Value then holds the
// metadata default, otherwise it is unit.
type StorageEntry struct {
	Module string
	Item   string
	Key    []byte
	Value  codec.Value
	Absent bool
}

// StorageKey builds the key of a storage item:
//
//	twox128(prefix) ++ twox128(item) ++ hasher_1(key_1) ++ ... ++ hasher_n(key_n)
//
// Fewer keys than the item declares yield an iteration prefix.
func (r *Resolver) StorageKey(module, item string, keys ...codec.Value) ([]byte, error) {
	e, err := r.md.Storage(module, item)
	if err != nil {
		return nil, err
	}
	return r.storageKey(e, keys)
}

func (r *Resolver) storageKey(e *metadata.StorageEntry, keys []codec.Value) ([]byte, error) {
	if len(keys) > len(e.Keys) {
		return nil, errors.ArgumentMismatch(errors.PhaseStorage, e.Module+"."+e.Name, len(e.Keys), len(keys))
	}

	out := make([]byte, 0, 32+len(keys)*48)
	out = append(out, hashing.Twox128Sum([]byte(e.Prefix))...)
	out = append(out, hashing.Twox128Sum([]byte(e.Name))...)
	for i, k := range keys {
		enc, err := r.codec.Encode(e.Keys[i], k)
		if err != nil {
			return nil, prefixPath(err, "key["+strconv.Itoa(i)+"]")
		}
		h, err := r.hashers.For(e.Hashers[i])
		if err != nil {
			return nil, err
		}
		out = append(out, h.Hash(enc)...)
	}
	return out, nil
}

// DecodeStorage decodes a raw storage value of the item's value type.
func (r *Resolver) DecodeStorage(module, item string, raw []byte) (codec.Value, error) {
	e, err := r.md.Storage(module, item)
	if err != nil {
		return codec.Value{}, err
	}
	return r.codec.DecodeAll(e.Value, raw)
}

// DefaultStorage decodes the metadata default of an item. Items with the
// optional modifier have no default.
func (r *Resolver) DefaultStorage(module, item string) (codec.Value, error) {
	e, err := r.md.Storage(module, item)
	if err != nil {
		return codec.Value{}, err
	}
	return r.defaultValue(e)
}

func (r *Resolver) defaultValue(e *metadata.StorageEntry) (codec.Value, error) {
	if e.Modifier != metadata.ModifierDefault {
		return codec.Value{}, errors.NotFound(errors.PhaseStorage, "default of", e.Module+"."+e.Name)
	}
	return r.codec.DecodeAll(e.Value, e.Default)
}

// Fetch reads and decodes one storage entry at the best block.
func (r *Resolver) Fetch(ctx context.Context, f Fetcher, module, item string, keys ...codec.Value) (StorageEntry, error) {
	return r.FetchAt(ctx, f, nil, module, item, keys...)
}

// FetchAt reads and decodes one storage entry at block at.
func (r *Resolver) FetchAt(ctx context.Context, f Fetcher, at []byte, module, item string, keys ...codec.Value) (StorageEntry, error) {
	e, err := r.md.Storage(module, item)
	if err != nil {
		return StorageEntry{}, err
	}
	if len(keys) != len(e.Keys) {
		return StorageEntry{}, errors.ArgumentMismatch(errors.PhaseStorage, module+"."+item, len(e.Keys), len(keys))
	}
	key, err := r.storageKey(e, keys)
	if err != nil {
		return StorageEntry{}, err
	}
	return r.fetch(ctx, f, e, key, at)
}

func (r *Resolver) fetch(ctx context.Context, f Fetcher, e *metadata.StorageEntry, key, at []byte) (StorageEntry, error) {
	out := StorageEntry{Module: e.Module, Item: e.Name, Key: key}
	raw, ok, err := f.FetchStorage(ctx, key, at)
	if err != nil {
		if _, structured := errors.As(err); structured {
			return out, err
		}
		return out, errors.Transport("fetch storage "+e.Module+"."+e.Name, err)
	}
	if !ok {
		out.Absent = true
		out.Value = codec.Unit()
		if e.Modifier == metadata.ModifierDefault {
			if out.Value, err = r.defaultValue(e); err != nil {
				return out, err
			}
		}
		return out, nil
	}
	if out.Value, err = r.codec.DecodeAll(e.Value, raw); err != nil {
		return out, err
	}
	return out, nil
}

// MapKeys looks up several full keys of a map item concurrently. Results
// are aligned with keyTuples; absent keys are reported in place. The first
// encoding, transport or decoding failure aborts the batch.
func (r *Resolver) MapKeys(ctx context.Context, f Fetcher, module, item string, keyTuples [][]codec.Value) ([]StorageEntry, error) {
	e, err := r.md.Storage(module, item)
	if err != nil {
		return nil, err
	}

	keys := make([][]byte, len(keyTuples))
	for i, tuple := range keyTuples {
		if len(tuple) != len(e.Keys) {
			return nil, errors.ArgumentMismatch(errors.PhaseStorage, module+"."+item, len(e.Keys), len(tuple))
		}
		if keys[i], err = r.storageKey(e, tuple); err != nil {
			return nil, prefixPath(err, "["+strconv.Itoa(i)+"]")
		}
	}

	out := make([]StorageEntry, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			res, err := r.fetch(gctx, f, e, key, nil)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

package hashing

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/wippyai/subscript/errors"
)

// Kind identifies a storage hasher. Values follow the StorageHasher tag
// order used by node metadata.
type Kind uint8

const (
	Blake2_128 Kind = iota
	Blake2_256
	Blake2_128Concat
	Twox128
	Twox256
	Twox64Concat
	Identity
)

var kindNames = [...]string{
	Blake2_128:       "Blake2_128",
	Blake2_256:       "Blake2_256",
	Blake2_128Concat: "Blake2_128Concat",
	Twox128:          "Twox128",
	Twox256:          "Twox256",
	Twox64Concat:     "Twox64Concat",
	Identity:         "Identity",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Valid reports whether k is a known hasher tag.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// Transparent reports whether the hashed output ends with the input, so
// keys can be recovered from storage keys.
func (k Kind) Transparent() bool {
	return k == Blake2_128Concat || k == Twox64Concat || k == Identity
}

// Hasher hashes an encoded storage key part.
type Hasher interface {
	Hash(data []byte) []byte
}

// HasherFunc adapts a function to Hasher.
type HasherFunc func(data []byte) []byte

func (f HasherFunc) Hash(data []byte) []byte { return f(data) }

// Set maps hasher tags to implementations. The zero value is empty;
// NewSet returns a set holding the standard hashers.
type Set struct {
	mu      sync.RWMutex
	hashers map[Kind]Hasher
}

// NewSet returns a set with every standard hasher registered.
func NewSet() *Set {
	s := &Set{hashers: make(map[Kind]Hasher, len(kindNames))}
	s.hashers[Blake2_128] = HasherFunc(Blake2b128)
	s.hashers[Blake2_256] = HasherFunc(Blake2b256)
	s.hashers[Blake2_128Concat] = HasherFunc(func(b []byte) []byte { return concat(Blake2b128(b), b) })
	s.hashers[Twox128] = HasherFunc(Twox128Sum)
	s.hashers[Twox256] = HasherFunc(Twox256Sum)
	s.hashers[Twox64Concat] = HasherFunc(func(b []byte) []byte { return concat(Twox64Sum(b), b) })
	s.hashers[Identity] = HasherFunc(func(b []byte) []byte { return append([]byte(nil), b...) })
	return s
}

// Register installs h for k, replacing any previous hasher.
func (s *Set) Register(k Kind, h Hasher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashers == nil {
		s.hashers = make(map[Kind]Hasher)
	}
	s.hashers[k] = h
}

// For returns the hasher registered for k.
func (s *Set) For(k Kind) (Hasher, error) {
	s.mu.RLock()
	h, ok := s.hashers[k]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Unsupported(errors.PhaseStorage, "storage hasher "+k.String())
	}
	return h, nil
}

// Hash hashes data with the hasher registered for k.
func (s *Set) Hash(k Kind, data []byte) ([]byte, error) {
	h, err := s.For(k)
	if err != nil {
		return nil, err
	}
	return h.Hash(data), nil
}

var defaultSet = NewSet()

// Default returns the process-wide set used when no set is configured.
func Default() *Set { return defaultSet }

// For returns the default hasher for k.
func For(k Kind) (Hasher, error) { return defaultSet.For(k) }

// Register replaces the default hasher for k.
func Register(k Kind, h Hasher) { defaultSet.Register(k, h) }

// Hash hashes data with the default hasher for k.
func Hash(k Kind, data []byte) ([]byte, error) { return defaultSet.Hash(k, data) }

// Twox computes the concatenation of xxhash64 digests seeded 0..bits/64-1,
// each little-endian.
func Twox(data []byte, bits int) []byte {
	n := bits / 64
	out := make([]byte, 0, n*8)
	for seed := range n {
		d := xxhash.NewWithSeed(uint64(seed))
		d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

// Twox64Sum is the 8-byte xxhash of data.
func Twox64Sum(data []byte) []byte { return Twox(data, 64) }

// Twox128Sum is the 16-byte xxhash of data, used for storage prefixes.
func Twox128Sum(data []byte) []byte { return Twox(data, 128) }

// Twox256Sum is the 32-byte xxhash of data.
func Twox256Sum(data []byte) []byte { return Twox(data, 256) }

// Blake2b128 is the 16-byte blake2b digest of data.
func Blake2b128(data []byte) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return h.Sum(nil)
}

// Blake2b256 is the 32-byte blake2b digest of data.
func Blake2b256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

func concat(hash, data []byte) []byte {
	out := make([]byte, 0, len(hash)+len(data))
	out = append(out, hash...)
	return append(out, data...)
}

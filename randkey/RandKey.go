// Package randkey implements splittable pseudo-random keys. Every
// stochastic operation in the loss core draws from a Key, so a
// computation is reproducible given the same key and inputs.
package randkey

import (
	"golang.org/x/exp/rand"
)

// Key is a deterministic source of randomness. Splitting a Key yields
// child keys whose streams are independent of the parent's future
// draws, so sub-computations can be reordered without changing each
// other's samples.
type Key struct {
	rng *rand.Rand
}

// New returns a new Key from a seed
func New(seed uint64) Key {
	return Key{rng: rand.New(rand.NewSource(seed))}
}

// Split consumes the key and returns n+1 keys: a replacement for the
// parent followed by n child keys.
func (k Key) Split(n int) (Key, []Key) {
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = New(k.rng.Uint64())
	}
	return New(k.rng.Uint64()), keys
}

// Next consumes the key and returns a replacement together with a
// single child key.
func (k Key) Next() (Key, Key) {
	child := New(k.rng.Uint64())
	return New(k.rng.Uint64()), child
}

// Rand exposes the key's underlying generator for consumers that need
// raw draws, such as distribution samplers.
func (k Key) Rand() *rand.Rand {
	return k.rng
}

// Uint64 draws a raw value from the key's stream.
func (k Key) Uint64() uint64 {
	return k.rng.Uint64()
}

// SampleWithoutReplacement samples min(k, n) distinct indices from
// [0, n). Requesting more samples than available is not an error; the
// sample size is capped at n.
func SampleWithoutReplacement(key Key, n, k int) []int {
	if k > n {
		k = n
	}
	perm := key.rng.Perm(n)
	return perm[:k]
}

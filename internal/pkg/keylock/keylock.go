// Package keylock provides per-key mutual exclusion over a fixed set of
// shards. Every mutation of a product, hold, order, or notification runs
// inside the exclusive section for that record's key; this is the mechanism
// that linearizes concurrent check-then-act sequences against the same row.
//
// Each resource kind owns its own KeyLock instance. Locks from distinct
// instances may be nested; because shard mutexes are not reentrant, nesting
// two keys from the same instance would self-deadlock on a shard collision
// and is never done. Cross-instance acquisition follows a single global
// order (webhook, then order, then hold, then product).
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 128

type KeyLock struct {
	shards []sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{shards: make([]sync.Mutex, defaultShards)}
}

func (k *KeyLock) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%uint32(len(k.shards))]
}

// Lock acquires the exclusive section for key and returns its unlock func.
func (k *KeyLock) Lock(key string) func() {
	m := k.shard(key)
	m.Lock()
	return m.Unlock
}

// WithLock runs fn inside the exclusive section for key.
func (k *KeyLock) WithLock(key string, fn func() error) error {
	defer k.Lock(key)()
	return fn()
}

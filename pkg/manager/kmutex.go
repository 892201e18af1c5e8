package manager

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per key using a fixed set of lock stripes.
// Fan-out branches for different sites hash to (almost always)
// different stripes and proceed in parallel; two operations touching
// the same (site, username) always collide and serialize, which is
// what keeps mirror updates from losing writes. A global lock would
// needlessly serialize unrelated sites.
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	if n <= 0 {
		n = 64
	}
	return &keyedMutex{stripes: make([]sync.Mutex, n)}
}

// lock acquires the stripe for key and returns its unlock func
func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}

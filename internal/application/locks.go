package application

import "sync"

// keyedLocker serialises writers per entity key. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedLocker) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func stakeLockKey(owner string) string { return "stake:" + owner }

func paymentLockKey(id string) string { return "payment:" + id }

func dealLockKey(id string) string { return "deal:" + id }

func queryLockKey(payer, resource string) string { return "query:" + payer + ":" + resource }

func channelLockKey(payer, payee string) string { return "channel:" + payer + ":" + payee }

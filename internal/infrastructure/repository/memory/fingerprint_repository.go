package memory

import (
	"context"
	"sync"
)

type FingerprintRepository struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func NewFingerprintRepository() *FingerprintRepository {
	return &FingerprintRepository{hashes: make(map[string]string)}
}

func (r *FingerprintRepository) BatchLookup(_ context.Context, keys []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if hash, ok := r.hashes[key]; ok {
			out[key] = hash
		}
	}
	return out, nil
}

func (r *FingerprintRepository) Upsert(_ context.Context, key, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes[key] = hash
	return nil
}

package fingerprint

import "context"

type Repository interface {
	// BatchLookup returns the stored hash per key in one round trip.
	// Unknown keys are absent from the result.
	BatchLookup(ctx context.Context, keys []string) (map[string]string, error)
	Upsert(ctx context.Context, key, hash string) error
}

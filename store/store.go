package store

import "context"

/**
 * Store is the byte-level persistence contract behind the run store.
 * Keys are grouped under a prefix (one prefix per flow run); Set must
 * be atomic per (prefix, key) so a racing upsert ends with exactly one
 * of the written values.
 */
type Store interface {
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * remove an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error

	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}

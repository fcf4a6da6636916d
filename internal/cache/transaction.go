package cache

import (
	"encoding/json"
	"fmt"

	"github.com/quotevault/quotevault/internal/core"
)

// Transaction is an optimistic update on one query key: Begin applies
// the expected result immediately, Commit replaces it with the real
// result, Abort restores the prior value. A duplicate-key failure is
// treated as already-satisfied, so Abort keeps the optimistic value.
type Transaction struct {
	cache    *QueryCache
	key      QueryKey
	previous json.RawMessage
	had      bool
	done     bool
}

// Begin snapshots the current value for key and applies optimistic in
// its place. The write is visible to readers before Begin returns, per
// the apply-before-dispatch ordering for optimistic updates.
func (c *QueryCache) Begin(key QueryKey, optimistic any) (*Transaction, error) {
	raw, err := json.Marshal(optimistic)
	if err != nil {
		return nil, fmt.Errorf("encode optimistic value: %w", err)
	}

	t := &Transaction{cache: c, key: key}
	t.previous, t.had = c.Raw(key)
	c.setRaw(key, raw, Options{})
	return t, nil
}

// Commit finalizes the transaction. A non-nil final value replaces the
// optimistic one; nil keeps it.
func (t *Transaction) Commit(final any) error {
	if t.done {
		return nil
	}
	t.done = true
	if final == nil {
		return nil
	}
	return t.cache.SetQueryData(t.key, final)
}

// Abort rolls the key back to its pre-Begin value, unless the failure
// was a benign duplicate, in which case the optimistic value stands.
func (t *Transaction) Abort(cause error) {
	if t.done {
		return
	}
	t.done = true
	if core.IsDuplicate(cause) {
		return
	}

	if t.had {
		t.cache.setRaw(t.key, t.previous, Options{})
		return
	}
	t.cache.ResetQueries(t.key)
}

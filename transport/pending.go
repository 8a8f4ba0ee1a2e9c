package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vinayprograms/agentwire/errors"
)

// pendingEntry is the bookkeeping record for one in-flight request. It is
// owned exclusively by the pendingTable and resolved exactly once: either a
// matching response lands in ch, or ch is closed by failAll with the reason
// in failed.
type pendingEntry struct {
	id      RequestID
	ch      chan *Response
	failed  error
	created time.Time
}

// pendingTable maps in-flight request ids to their waiting callers. All
// mutations happen under one mutex so an entry can never be resolved twice
// or lost between insert and failAll.
type pendingTable struct {
	mu      sync.Mutex
	entries map[RequestID]*pendingEntry
	dead    error // set once; inserts are refused afterwards
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[RequestID]*pendingEntry)}
}

// insert registers a new in-flight request. It fails fast when the id is
// already live (caller reuse is a usage error) or the table is dead.
func (t *pendingTable) insert(id RequestID) (*pendingEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dead != nil {
		return nil, t.dead
	}
	if _, exists := t.entries[id]; exists {
		return nil, errors.DuplicateRequestID(id.String())
	}

	entry := &pendingEntry{
		id:      id,
		ch:      make(chan *Response, 1),
		created: time.Now(),
	}
	t.entries[id] = entry
	return entry, nil
}

// resolve delivers a response to the matching entry. It returns false when
// no entry matches, which the caller treats as a discardable duplicate.
// A second resolve for the same id finds nothing and is a no-op.
func (t *pendingTable) resolve(resp *Response) bool {
	t.mu.Lock()
	entry, ok := t.entries[resp.ID]
	if ok {
		delete(t.entries, resp.ID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.ch <- resp // buffered; never blocks
	return true
}

// remove evicts an entry whose caller gave up waiting. A response arriving
// later finds no entry and is discarded.
func (t *pendingTable) remove(id RequestID) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// failAll marks the table dead and wakes every waiting caller with reason.
// Only the first call has any effect.
func (t *pendingTable) failAll(reason error) {
	t.mu.Lock()
	if t.dead != nil {
		t.mu.Unlock()
		return
	}
	t.dead = reason
	entries := t.entries
	t.entries = make(map[RequestID]*pendingEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.failed = reason
		close(entry.ch)
	}
}

// size returns the number of live entries.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// await suspends the caller until the entry resolves. The entry is always
// evicted on every exit path, so abandoned requests never leak.
func (t *pendingTable) await(ctx context.Context, entry *pendingEntry, timeout time.Duration, method string) (json.RawMessage, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case resp, ok := <-entry.ch:
		if !ok {
			return nil, entry.failed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil

	case <-ctx.Done():
		t.remove(entry.id)
		return nil, errors.Wrap(ctx.Err(), "request abandoned", errors.WithMethod(method))

	case <-timer:
		t.remove(entry.id)
		return nil, errors.RequestTimeout(method)
	}
}

package match

import (
	"container/list"
	"sync"
	"time"

	"github.com/veilchat/whispermatch/internal/models"
)

// WaitPool tracks users awaiting a match in strict FIFO order.
// All methods are safe for concurrent use; the Matchmaker is the only
// component that mutates the pool as part of pairing.
type WaitPool struct {
	mu     sync.Mutex
	order  *list.List               // of *models.WaitingEntry, oldest first
	byUser map[string]*list.Element // userID -> element in order
}

// NewWaitPool creates an empty pool
func NewWaitPool() *WaitPool {
	return &WaitPool{
		order:  list.New(),
		byUser: make(map[string]*list.Element),
	}
}

// Enqueue inserts a waiting entry for userID. Returns ErrAlreadyWaiting
// if the user already has an outstanding entry.
func (p *WaitPool) Enqueue(userID string) (*models.WaitingEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byUser[userID]; ok {
		return nil, ErrAlreadyWaiting
	}

	entry := &models.WaitingEntry{
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
	p.byUser[userID] = p.order.PushBack(entry)
	return entry, nil
}

// DequeueOldest removes and returns the oldest entry whose user is not
// excluding. Returns nil if no such entry exists.
func (p *WaitPool) DequeueOldest(excluding string) *models.WaitingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	for el := p.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*models.WaitingEntry)
		if entry.UserID == excluding {
			continue
		}
		p.order.Remove(el)
		delete(p.byUser, entry.UserID)
		return entry
	}
	return nil
}

// Remove drops the user's entry if present. Idempotent; reports whether
// an entry was removed.
func (p *WaitPool) Remove(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.byUser[userID]
	if !ok {
		return false
	}
	p.order.Remove(el)
	delete(p.byUser, userID)
	return true
}

// RestoreFront reinserts an entry at the head of the pool, preserving
// its original enqueue time. Used when a dequeued partner could not be
// paired after all.
func (p *WaitPool) RestoreFront(entry *models.WaitingEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byUser[entry.UserID]; ok {
		return
	}
	p.byUser[entry.UserID] = p.order.PushFront(entry)
}

// Contains reports whether the user has an outstanding entry
func (p *WaitPool) Contains(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byUser[userID]
	return ok
}

// Len returns the number of waiting users
func (p *WaitPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// ExpireOlderThan removes and returns every entry enqueued at or before
// cutoff. Used by the sweeper to enforce the optional wait timeout.
func (p *WaitPool) ExpireOlderThan(cutoff time.Time) []*models.WaitingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []*models.WaitingEntry
	for el := p.order.Front(); el != nil; {
		entry := el.Value.(*models.WaitingEntry)
		if entry.EnqueuedAt.After(cutoff) {
			// Entries are ordered by arrival, the rest are newer
			break
		}
		next := el.Next()
		p.order.Remove(el)
		delete(p.byUser, entry.UserID)
		stale = append(stale, entry)
		el = next
	}
	return stale
}

// Snapshot returns the waiting entries oldest-first, for admin introspection
func (p *WaitPool) Snapshot() []models.WaitingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.WaitingEntry, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*models.WaitingEntry))
	}
	return out
}

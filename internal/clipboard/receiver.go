package clipboard

import (
	"context"
	"sync/atomic"
)

// DeliverFunc pushes an applied entry into a window
type DeliverFunc func(ctx context.Context, e Entry) error

// Receiver is one window's view of the clipboard. Apply is lock-free.
type Receiver struct {
	last    atomic.Pointer[Entry]
	deliver DeliverFunc
}

// NewReceiver creates a receiver. deliver may be nil.
func NewReceiver(deliver DeliverFunc) *Receiver {
	return &Receiver{deliver: deliver}
}

// Apply records e if it is newer than anything applied so far
func (r *Receiver) Apply(e Entry) bool {
	next := e
	for {
		cur := r.last.Load()
		if cur != nil && e.ID <= cur.ID {
			return false
		}
		if r.last.CompareAndSwap(cur, &next) {
			return true
		}
	}
}

// Receive applies e and, when it was newer, delivers it
func (r *Receiver) Receive(ctx context.Context, e Entry) (applied bool, err error) {
	if !r.Apply(e) {
		return false, nil
	}
	if r.deliver == nil {
		return true, nil
	}
	return true, r.deliver(ctx, e)
}

// Last returns the newest applied entry
func (r *Receiver) Last() (Entry, bool) {
	cur := r.last.Load()
	if cur == nil {
		return Entry{}, false
	}
	return *cur, true
}

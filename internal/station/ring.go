package station

import "sync"

// ring keeps the newest messages up to a fixed capacity.
type ring struct {
	mu   sync.Mutex
	buf  []Message
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Message, capacity)}
}

func (r *ring) push(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = m
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns retained messages oldest first. A positive limit trims
// to the newest limit entries.
func (r *ring) snapshot(limit int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	if r.full {
		out = make([]Message, 0, len(r.buf))
		out = append(out, r.buf[r.next:]...)
		out = append(out, r.buf[:r.next]...)
	} else {
		out = append(out, r.buf[:r.next]...)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *ring) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

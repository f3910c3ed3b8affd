// Package history keeps the bounded log of recently accepted command lines.
package history

// DefaultSize is the number of commands kept when no size is configured.
const DefaultSize = 3

// Recent is a fixed-capacity FIFO of command lines. When full, adding a line
// evicts the oldest one.
type Recent struct {
	ring  []string
	start int
	count int
}

// NewRecent creates a log holding at most size entries.
func NewRecent(size int) *Recent {
	if size <= 0 {
		size = DefaultSize
	}
	return &Recent{ring: make([]string, size)}
}

// Add appends a line, evicting the oldest entry if the log is full.
func (r *Recent) Add(line string) {
	if r.count < len(r.ring) {
		r.ring[(r.start+r.count)%len(r.ring)] = line
		r.count++
		return
	}

	r.ring[r.start] = line
	r.start = (r.start + 1) % len(r.ring)
}

// Entries returns the logged lines from oldest to most recent.
func (r *Recent) Entries() []string {
	out := make([]string, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.ring[(r.start+i)%len(r.ring)])
	}
	return out
}

// Len returns the number of logged lines.
func (r *Recent) Len() int {
	return r.count
}

// Cap returns the maximum number of lines kept.
func (r *Recent) Cap() int {
	return len(r.ring)
}

// Clear drops every entry.
func (r *Recent) Clear() {
	for i := range r.ring {
		r.ring[i] = ""
	}
	r.start = 0
	r.count = 0
}

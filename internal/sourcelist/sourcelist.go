// Package sourcelist implements the encoder's window: an ordered-by-id
// sequence of outstanding sources awaiting acknowledgment.
package sourcelist

import "fmt"

// Entry is one source held in the window.
type Entry struct {
	ID       uint32
	UserSize uint16
	Bytes    []byte
}

// List keeps entries ordered by strictly increasing id, backed by a slice
// so that ascending iteration (the only order the encoder needs) is a
// straight scan and bulk erase is a single compaction pass.
type List struct {
	entries []Entry
}

// New returns an empty source list.
func New() *List {
	return &List{}
}

// Emplace appends a new entry. id must exceed every id already present.
func (l *List) Emplace(id uint32, bytes []byte, userSize uint16) error {
	if n := len(l.entries); n > 0 && id <= l.entries[n-1].ID {
		return fmt.Errorf("sourcelist: id %d does not exceed current max %d", id, l.entries[n-1].ID)
	}
	l.entries = append(l.entries, Entry{ID: id, UserSize: userSize, Bytes: bytes})
	return nil
}

// EraseIDs removes every entry whose id is in ids, in a single pass. Ids not
// present in the list are silently skipped.
func (l *List) EraseIDs(ids map[uint32]struct{}) int {
	if len(ids) == 0 {
		return 0
	}
	out := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if _, drop := ids[e.ID]; drop {
			removed++
			continue
		}
		out = append(out, e)
	}
	l.entries = out
	return removed
}

// EraseUpTo removes every entry with id <= max — the shape the encoder
// actually needs, since acks are cumulative by maximum.
func (l *List) EraseUpTo(max uint32) int {
	removed := 0
	for removed < len(l.entries) && l.entries[removed].ID <= max {
		removed++
	}
	if removed == 0 {
		return 0
	}
	l.entries = append(l.entries[:0], l.entries[removed:]...)
	return removed
}

// PopFront removes and returns the entry with the smallest id, if any.
func (l *List) PopFront() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	e := l.entries[0]
	l.entries = l.entries[1:]
	return e, true
}

// Size returns the number of held entries.
func (l *List) Size() int { return len(l.entries) }

// MaxUserSize returns the largest UserSize among held entries, or 0 if empty.
func (l *List) MaxUserSize() uint16 {
	var max uint16
	for _, e := range l.entries {
		if e.UserSize > max {
			max = e.UserSize
		}
	}
	return max
}

// Each calls fn for every entry in ascending id order.
func (l *List) Each(fn func(Entry)) {
	for _, e := range l.entries {
		fn(e)
	}
}

// Ids returns every held id in ascending order.
func (l *List) Ids() []uint32 {
	ids := make([]uint32, len(l.entries))
	for i, e := range l.entries {
		ids[i] = e.ID
	}
	return ids
}

package items

import "fmt"

// List is the ordered, mutable collection of source items. Position is the only
// ordering key. List is not safe for concurrent use; callers own serialisation.
type List struct {
	items []SourceItem
	// seq counts every accepted append so keys stay unique after removals.
	seq int
}

// NewList returns an empty list.
func NewList() *List { return &List{} }

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// At returns the item at index i.
func (l *List) At(i int) (SourceItem, error) {
	if i < 0 || i >= len(l.items) {
		return SourceItem{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.items))
	}
	return l.items[i], nil
}

// Append adds item at the end. Only the declared kind is checked; the payload is not
// inspected. An empty key is derived from the acquisition position and name.
func (l *List) Append(item SourceItem) (SourceItem, error) {
	if !item.Kind.Supported() {
		return SourceItem{}, fmt.Errorf("%w: %q has kind %q", ErrKindNotSupported, item.Name, item.Kind)
	}
	if item.Key == "" {
		item.Key = MakeKey(l.seq, item.Name)
	}
	l.seq++
	l.items = append(l.items, item)
	return item, nil
}

// RemoveAt deletes the item at index i and closes the gap.
func (l *List) RemoveAt(i int) error {
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.items))
	}
	copy(l.items[i:], l.items[i+1:])
	l.items[len(l.items)-1] = SourceItem{}
	l.items = l.items[:len(l.items)-1]
	return nil
}

// MoveTo extracts the item at from and reinserts it at to. Items between the two
// positions shift by one; the relative order of all other items is kept.
func (l *List) MoveTo(from, to int) error {
	n := len(l.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d (len %d)", ErrIndexOutOfRange, from, to, n)
	}
	if from == to {
		return nil
	}
	moved := l.items[from]
	if from < to {
		copy(l.items[from:to], l.items[from+1:to+1])
	} else {
		copy(l.items[to+1:from+1], l.items[to:from])
	}
	l.items[to] = moved
	return nil
}

// Clear empties the list.
func (l *List) Clear() {
	l.items = nil
}

// Snapshot returns an immutable point-in-time copy of the list.
func (l *List) Snapshot() Snapshot {
	cp := make([]SourceItem, len(l.items))
	copy(cp, l.items)
	return Snapshot{items: cp}
}

// Snapshot is a read-only ordered view taken for one assembly invocation.
type Snapshot struct {
	items []SourceItem
}

// SnapshotOf builds a snapshot directly from items, e.g. for a single split source.
func SnapshotOf(items ...SourceItem) Snapshot {
	cp := make([]SourceItem, len(items))
	copy(cp, items)
	return Snapshot{items: cp}
}

func (s Snapshot) Len() int { return len(s.items) }

func (s Snapshot) At(i int) SourceItem { return s.items[i] }

// Items returns a copy of the snapshot contents.
func (s Snapshot) Items() []SourceItem {
	cp := make([]SourceItem, len(s.items))
	copy(cp, s.items)
	return cp
}

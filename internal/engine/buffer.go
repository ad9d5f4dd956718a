package engine

import "tickwatch/pkg/model"

// Buffer is a fixed-capacity ring of bars for one symbol. Appending at
// capacity evicts the oldest bar.
type Buffer struct {
	bars  []model.Bar
	start int
	size  int
}

// NewBuffer creates a buffer holding at most capacity bars.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{bars: make([]model.Bar, capacity)}
}

// Append adds a bar, evicting the oldest when full.
func (b *Buffer) Append(bar model.Bar) {
	if b.size < len(b.bars) {
		b.bars[(b.start+b.size)%len(b.bars)] = bar
		b.size++
		return
	}
	b.bars[b.start] = bar
	b.start = (b.start + 1) % len(b.bars)
}

// Len returns the number of buffered bars.
func (b *Buffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.bars)
}

// Snapshot returns the buffered bars in insertion order. The returned
// slice is a copy and safe to retain.
func (b *Buffer) Snapshot() []model.Bar {
	out := make([]model.Bar, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.bars[(b.start+i)%len(b.bars)]
	}
	return out
}

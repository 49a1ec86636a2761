package indicators

// RingBuffer is a fixed-capacity FIFO. Pushing into a full buffer evicts the oldest item.
type RingBuffer[T any] struct {
	items []T
	head  int
	size  int
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &RingBuffer[T]{
		items: make([]T, capacity),
	}
}

func (b *RingBuffer[T]) Push(item T) (evicted T, didEvict bool) {
	idx := (b.head + b.size) % len(b.items)
	if b.size == len(b.items) {
		evicted = b.items[b.head]
		didEvict = true
		b.items[b.head] = item
		b.head = (b.head + 1) % len(b.items)
		return evicted, didEvict
	}

	b.items[idx] = item
	b.size++
	return evicted, false
}

func (b *RingBuffer[T]) Len() int {
	return b.size
}

func (b *RingBuffer[T]) Cap() int {
	return len(b.items)
}

// At returns the i-th item counting from the oldest.
func (b *RingBuffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("indicators: ring buffer index out of range")
	}

	return b.items[(b.head+i)%len(b.items)]
}

func (b *RingBuffer[T]) Last() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}

	return b.At(b.size - 1), true
}

// Tail copies the newest n items, oldest first.
func (b *RingBuffer[T]) Tail(n int) []T {
	if n > b.size {
		n = b.size
	}

	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	start := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.At(start + i)
	}

	return out
}

func (b *RingBuffer[T]) Values() []T {
	return b.Tail(b.size)
}

// Pop removes and returns the oldest item.
func (b *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}

	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.size--
	return item, true
}

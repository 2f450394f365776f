package ringbuf

// RingBuf holds the last MaxLen values pushed to it.
type RingBuf[T any] struct {
	buf        []T
	head, tail int
}

func New[T any](n int) RingBuf[T] {
	if n < 1 {
		n = 1
	}
	return RingBuf[T]{buf: make([]T, n)}
}

func (rb *RingBuf[T]) MaxLen() int {
	return len(rb.buf)
}

// PushBack appends val, dropping the oldest value if the buffer is full.
func (rb *RingBuf[T]) PushBack(val T) {
	if rb.Len() == len(rb.buf) {
		rb.head++
	}
	rb.buf[rb.tail%len(rb.buf)] = val
	rb.tail++
}

func (rb *RingBuf[T]) PopFront() T {
	val := rb.At(0)
	var zero T
	rb.buf[rb.head%len(rb.buf)] = zero
	rb.head++
	return val
}

func (rb *RingBuf[T]) At(i int) T {
	if i < 0 || i >= rb.Len() {
		panic(i)
	}
	return rb.buf[(rb.head+i)%len(rb.buf)]
}

func (rb *RingBuf[T]) Len() int {
	return rb.tail - rb.head
}

// Slice returns the values oldest first.
func (rb *RingBuf[T]) Slice() []T {
	ret := make([]T, rb.Len())
	for i := range ret {
		ret[i] = rb.At(i)
	}
	return ret
}

func (rb *RingBuf[T]) Clear() {
	clear(rb.buf)
	rb.head, rb.tail = 0, 0
}

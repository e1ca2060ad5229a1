// Package pkbuf implements the FIFO byte staging buffer used on both sides
// of the pK connection: client-side inbound reassembly, pK-side per-session
// inbound reassembly, and pK-side per-session outbound queuing.
package pkbuf

// Buffer is an append-only, consume-from-front byte queue. The zero value
// is ready to use. Buffer is not safe for concurrent use; callers run it
// from a single event-loop thread.
type Buffer struct {
	data []byte
	off  int // data[off:] is the live window
}

// Append adds p to the end of the buffer. p is copied; the caller may reuse
// it afterward.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.data = append(b.data, p...)
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Peek returns the first n unconsumed bytes without removing them. It
// panics if n exceeds Len, matching the contract that callers check Len
// (or catch pkwire.ErrNeedMore) before peeking.
func (b *Buffer) Peek(n int) []byte {
	return b.PeekAt(0, n)
}

// PeekAt returns n bytes starting offset bytes into the unconsumed window,
// without removing them.
func (b *Buffer) PeekAt(offset, n int) []byte {
	start := b.off + offset
	end := start + n
	if start < b.off || end > len(b.data) {
		panic("pkbuf: PeekAt out of range")
	}
	return b.data[start:end]
}

// Consume removes the first n unconsumed bytes. It compacts the backing
// array once the consumed prefix grows large relative to the live window,
// so a long-lived buffer doesn't retain unbounded dead space.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("pkbuf: Consume out of range")
	}
	b.off += n
	if b.off > 0 && (b.off == len(b.data) || b.off > len(b.data)/2) {
		remaining := len(b.data) - b.off
		copy(b.data, b.data[b.off:])
		b.data = b.data[:remaining]
		b.off = 0
	}
}

// Bytes returns the entire unconsumed window. The returned slice aliases
// the buffer's internal storage and is invalidated by the next Append or
// Consume call.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Package buffer implements a fixed-capacity, movable-pointer byte buffer
// used throughout the protocol stack for header prepend/strip and payload
// padding. It mirrors the classic embedded-TCP/IP "pbuf" design: a single
// backing array plus a data offset and length, so headers can be prepended
// without copying the payload.
package buffer

import "errors"

var (
	errHeaderRoom  = errors.New("buffer: insufficient header room")
	errPaddingRoom = errors.New("buffer: insufficient tail room")
	errShortRemove = errors.New("buffer: remove exceeds length")
	errBadInit     = errors.New("buffer: init size exceeds capacity")
)

// Buffer is a fixed-capacity region of memory with a movable data window.
// The invariant payload <= data, data+len <= payload+cap(payload) always
// holds between calls.
//
// The zero value is not ready to use; call Init or Reset first.
type Buffer struct {
	payload []byte // fixed backing array, len(payload) == capacity
	off     int    // offset of data start within payload
	length  int    // length of valid data starting at off
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	b := &Buffer{payload: make([]byte, capacity)}
	return b
}

// Init resets the buffer to hold size bytes of data at the start of the
// backing array (data = payload, len = size). It fails if size exceeds the
// buffer's capacity.
func (b *Buffer) Init(size int) error {
	if size > cap(b.payload) {
		return errBadInit
	}
	b.off = 0
	b.length = size
	return nil
}

// Reset empties the buffer, moving data back to the payload origin.
func (b *Buffer) Reset() {
	b.off = 0
	b.length = 0
}

// Capacity returns the fixed maximum size of the buffer (BUF_MAX_LEN).
func (b *Buffer) Capacity() int { return cap(b.payload) }

// Len returns the number of valid data bytes currently held.
func (b *Buffer) Len() int { return b.length }

// HeadRoom returns the number of bytes available to prepend via AddHeader
// without compaction.
func (b *Buffer) HeadRoom() int { return b.off }

// TailRoom returns the number of bytes available to append via AddPadding
// without compaction.
func (b *Buffer) TailRoom() int { return cap(b.payload) - b.off - b.length }

// Data returns the current valid data window. The returned slice aliases
// the buffer's backing array and is only valid until the next mutating
// call.
func (b *Buffer) Data() []byte { return b.payload[b.off : b.off+b.length] }

// AddHeader shifts the data pointer left by n bytes, growing the front of
// the data window by n uninitialized bytes. It fails without modifying the
// buffer if there is insufficient header room; callers should Compact and
// retry.
func (b *Buffer) AddHeader(n int) error {
	if n < 0 {
		panic("buffer: negative AddHeader")
	}
	if n > b.off {
		return errHeaderRoom
	}
	b.off -= n
	b.length += n
	return nil
}

// RemoveHeader shifts the data pointer right by n bytes, shrinking the
// front of the data window. n must not exceed Len.
func (b *Buffer) RemoveHeader(n int) error {
	if n < 0 {
		panic("buffer: negative RemoveHeader")
	}
	if n > b.length {
		return errShortRemove
	}
	b.off += n
	b.length -= n
	return nil
}

// AddPadding extends the data window by n bytes at the tail. It fails
// without modifying the buffer if doing so would exceed capacity; callers
// should Compact and retry.
func (b *Buffer) AddPadding(n int) error {
	if n < 0 {
		panic("buffer: negative AddPadding")
	}
	if n > b.TailRoom() {
		return errPaddingRoom
	}
	b.length += n
	return nil
}

// RemovePadding shrinks the data window by n bytes at the tail. n must not
// exceed Len.
func (b *Buffer) RemovePadding(n int) error {
	if n < 0 {
		panic("buffer: negative RemovePadding")
	}
	if n > b.length {
		return errShortRemove
	}
	b.length -= n
	return nil
}

// Compact moves the data window back to the origin of the backing array,
// freeing all header room. Callers do this after a failed AddHeader or
// AddPadding.
func (b *Buffer) Compact() {
	if b.off == 0 {
		return
	}
	copy(b.payload[:b.length], b.payload[b.off:b.off+b.length])
	b.off = 0
}

// Append copies p onto the tail of the data window, compacting first if
// there is insufficient tail room but enough total free room. Returns the
// number of bytes copied, which is less than len(p) only if the buffer is
// full even after compaction.
func (b *Buffer) Append(p []byte) int {
	if len(p) > b.TailRoom() {
		b.Compact()
	}
	n := len(p)
	room := b.TailRoom()
	if n > room {
		n = room
	}
	copy(b.payload[b.off+b.length:], p[:n])
	b.length += n
	return n
}

// SetBytes replaces the valid data window wholesale, copying from p. It
// fails if p is larger than the buffer's capacity.
func (b *Buffer) SetBytes(p []byte) error {
	if len(p) > cap(b.payload) {
		return errBadInit
	}
	b.off = 0
	b.length = copy(b.payload, p)
	return nil
}

// CopyFrom replaces the receiver's contents with an independent copy of
// src's current data window, growing the receiver's backing array if
// needed. It is used as a ttlmap.CopyFunc so the ARP pending queue owns
// an independent copy of each buffered egress frame.
func (b *Buffer) CopyFrom(src *Buffer) {
	if cap(b.payload) < src.length {
		b.payload = make([]byte, src.length)
	}
	b.off = 0
	b.length = copy(b.payload, src.Data())
}

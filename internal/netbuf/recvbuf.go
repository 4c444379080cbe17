// Package netbuf implements the byte-oriented framing buffers used by a
// Socket's receive path.
package netbuf

import (
	"errors"

	"github.com/griffith06/MMORPG-Server/internal/constants"
)

// ErrOverflow is returned by Commit when advancing the write cursor would
// exceed the buffer's capacity. The caller must translate this into a
// socket close.
var ErrOverflow = errors.New("netbuf: commit overflow")

// RecvBuffer is a fixed-capacity byte buffer with independent read and
// write cursors, used to accumulate bytes off the wire until full packets
// can be framed out of it.
type RecvBuffer struct {
	buf      [constants.RecvBufferSize]byte
	readPos  int
	writePos int
}

// NewRecvBuffer returns a ready-to-use receive buffer.
func NewRecvBuffer() *RecvBuffer {
	return &RecvBuffer{}
}

// WritableSlice returns the contiguous writable region starting at the
// write cursor. Callers read into it directly (e.g. via net.Conn.Read)
// and then call Commit with however many bytes landed.
func (r *RecvBuffer) WritableSlice() []byte {
	return r.buf[r.writePos:]
}

// FreeSize is the number of bytes available before the next Clean.
func (r *RecvBuffer) FreeSize() int {
	return len(r.buf) - r.writePos
}

// Commit advances the write cursor by n bytes just placed into
// WritableSlice(). Returns ErrOverflow if n would run past capacity.
func (r *RecvBuffer) Commit(n int) error {
	if r.writePos+n > len(r.buf) {
		return ErrOverflow
	}
	r.writePos += n
	return nil
}

// ReadableSlice returns the contiguous readable region starting at the
// read cursor.
func (r *RecvBuffer) ReadableSlice() []byte {
	return r.buf[r.readPos:r.writePos]
}

// DataSize is the number of unread bytes currently buffered.
func (r *RecvBuffer) DataSize() int {
	return r.writePos - r.readPos
}

// Consume advances the read cursor by n bytes, marking them parsed.
func (r *RecvBuffer) Consume(n int) {
	r.readPos += n
	if r.readPos > r.writePos {
		r.readPos = r.writePos
	}
}

// Clean compacts the buffer by moving unread bytes to offset 0, freeing
// up the writable suffix. Called when FreeSize drops below
// constants.MaxPacketSize so a full packet can still be buffered whole.
func (r *RecvBuffer) Clean() {
	if r.readPos == 0 {
		return
	}
	n := copy(r.buf[:], r.buf[r.readPos:r.writePos])
	r.writePos = n
	r.readPos = 0
}

// NeedsClean reports whether the free suffix is too small to guarantee
// room for another maximal packet.
func (r *RecvBuffer) NeedsClean() bool {
	return r.FreeSize() < constants.MaxPacketSize
}

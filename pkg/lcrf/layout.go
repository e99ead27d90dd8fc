package lcrf

import (
	"bufio"
	"errors"
	"io"
	"math"
)

const (
	cursorBufSize = 64 * 1024
	zeroBufSize   = 4096
)

// cursor is a buffered, position-tracking view over the output stream.
//
// Every chunk, and the file header itself, is written in two phases: reserve
// fixed header bytes, stream the variable-length body, then patch the header
// in place once its size is known. cursor implements io.WriteSeeker so the
// dictionary collaborator can share the same stream.
type cursor struct {
	ws    io.WriteSeeker
	bw    *bufio.Writer
	pos   int64
	zeros []byte
}

// reservation marks header bytes written as zeros and awaiting a patch.
type reservation struct {
	start int64
	size  int
}

func newCursor(ws io.WriteSeeker) (*cursor, error) {
	pos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &cursor{
		ws:    ws,
		bw:    bufio.NewWriterSize(ws, cursorBufSize),
		pos:   pos,
		zeros: make([]byte, zeroBufSize),
	}, nil
}

func (c *cursor) Write(p []byte) (int, error) {
	if c.pos+int64(len(p)) > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	n, err := c.bw.Write(p)
	c.pos += int64(n)
	return n, err
}

// Seek flushes buffered bytes before moving. Asking for the current position
// is answered without touching the stream.
func (c *cursor) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent && offset == 0 {
		return c.pos, nil
	}
	if err := c.bw.Flush(); err != nil {
		return c.pos, err
	}
	pos, err := c.ws.Seek(offset, whence)
	if err != nil {
		return c.pos, err
	}
	c.pos = pos
	return pos, nil
}

// offset returns the current position as a file offset.
func (c *cursor) offset() (uint32, error) {
	if c.pos < 0 || c.pos > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	return uint32(c.pos), nil
}

// reserve writes n zero bytes at the current position and remembers where.
func (c *cursor) reserve(n int) (reservation, error) {
	r := reservation{start: c.pos, size: n}
	for n > 0 {
		chunk := min(n, len(c.zeros))
		if _, err := c.Write(c.zeros[:chunk]); err != nil {
			return reservation{}, err
		}
		n -= chunk
	}
	return r, nil
}

// span returns the number of bytes written since the reservation started.
func (c *cursor) span(r reservation) (uint32, error) {
	size := c.pos - r.start
	if size < int64(r.size) || size > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	return uint32(size), nil
}

// patch overwrites the reserved bytes with header and returns to the end.
func (c *cursor) patch(r reservation, header []byte) error {
	if len(header) != r.size {
		return errors.New("lcrf: patch size does not match reservation")
	}
	end := c.pos
	if _, err := c.Seek(r.start, io.SeekStart); err != nil {
		return err
	}
	if _, err := c.Write(header); err != nil {
		return err
	}
	if _, err := c.Seek(end, io.SeekStart); err != nil {
		return err
	}
	return nil
}

// flush pushes buffered bytes to the stream.
func (c *cursor) flush() error {
	return c.bw.Flush()
}

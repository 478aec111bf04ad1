package core

// Cursor is a bounds-checked read position over an immutable byte range.
//
// A Cursor is a small value: copying it forks the position without copying
// the bytes. Slices returned by Read and Peek alias the underlying frame and
// must not be modified.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) Cursor {
	return Cursor{data: data}
}

// Len returns the total size of the range the cursor covers.
func (c *Cursor) Len() int { return len(c.data) }

// Offset returns the number of bytes already consumed.
func (c *Cursor) Offset() int { return c.off }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.off }

// Rest returns the unread bytes without advancing.
func (c *Cursor) Rest() []byte { return c.data[c.off:] }

// Consumed returns the bytes read so far.
func (c *Cursor) Consumed() []byte { return c.data[:c.off] }

// Read returns the next n bytes and advances past them.
func (c *Cursor) Read(n int) ([]byte, error) {
	b, err := c.Peek(n)
	if err != nil {
		return nil, err
	}
	c.off += n
	return b, nil
}

// Peek returns the next n bytes without advancing.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, Structuralf("negative read length %d", n)
	}
	if n > c.Remaining() {
		return nil, Truncatedf("need %d bytes at offset %d, have %d", n, c.off, c.Remaining())
	}
	return c.data[c.off : c.off+n : c.off+n], nil
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// Sub returns a cursor over the next n bytes and advances the parent past
// them. The sub-cursor cannot read beyond those n bytes.
func (c *Cursor) Sub(n int) (Cursor, error) {
	b, err := c.Read(n)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{data: b}, nil
}

// Limit restricts the cursor to at most n further bytes.
// A limit beyond the current end is ignored.
func (c *Cursor) Limit(n int) {
	if n >= 0 && c.off+n < len(c.data) {
		c.data = c.data[:c.off+n]
	}
}

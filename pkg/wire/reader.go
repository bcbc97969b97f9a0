package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// reader is a small cursor over a byte slice shared by every decoder
// in this package. It never panics; every accessor returns an error on
// a short read so callers can surface a protocol error instead.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) byteVal() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("short read: need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// shortLenPrefixed reads a 1-byte length followed by that many bytes.
func (r *reader) shortLenPrefixed() ([]byte, error) {
	n, err := r.byteVal()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// u32Prefixed reads a 4-byte big-endian length followed by that many bytes.
func (r *reader) u32Prefixed() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n > uint32(len(r.buf)-r.pos) {
		return nil, fmt.Errorf("declared length %d exceeds remaining buffer", n)
	}
	return r.take(int(n))
}

func (r *reader) exhausted() bool { return r.pos == len(r.buf) }

func millisToTime(millis uint64) time.Time {
	return time.UnixMilli(int64(millis)).UTC()
}

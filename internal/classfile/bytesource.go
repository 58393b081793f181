package classfile

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrTruncated is returned when a read asks for more bytes than remain
// in the underlying source.
var ErrTruncated = errors.New("classfile: truncated")

// byteSource is a cursored, big-endian binary reader over a classfile.
// All multi-byte classfile fields are big-endian (JVMS 4.1).
type byteSource struct {
	r io.Reader
}

func newByteSource(r io.Reader) *byteSource {
	return &byteSource{r: r}
}

func (b *byteSource) readU8() (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return buf[0], nil
}

func (b *byteSource) readU16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (b *byteSource) readU32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (b *byteSource) readI32() (int32, error) {
	v, err := b.readU32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func (b *byteSource) readF32() (float32, error) {
	v, err := b.readU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (b *byteSource) readU64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (b *byteSource) readVec(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return nil, truncated(err)
	}
	return buf, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

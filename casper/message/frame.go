package message

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the size of the length prefix of a frame.
const HeaderSize = 4

// DefaultMaxFrameSize is the default limit on the encoded size of a
// single message.
const DefaultMaxFrameSize = 1 << 20

// Frame encodes m and prefixes it with its length as a big-endian
// uint32.
func Frame(m *Message) ([]byte, error) {
	body, err := Encode(m)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	return append(frame, body...), nil
}

// FrameSize returns the body length announced by a frame header.
// It fails with ErrDecoding if the length exceeds maxSize.
func FrameSize(header [HeaderSize]byte, maxSize int) (int, error) {
	n := binary.BigEndian.Uint32(header[:])
	if uint64(n) > uint64(maxSize) {
		return 0, decodingErrorf("frame of %d bytes exceeds limit of %d", n, maxSize)
	}
	return int(n), nil
}

// WriteFrame writes m to w as a single frame.
func WriteFrame(w io.Writer, m *Message) error {
	frame, err := Frame(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads a single frame from r and decodes it. Frames larger
// than maxSize fail with ErrDecoding.
func ReadFrame(r io.Reader, maxSize int) (*Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n, err := FrameSize(header, maxSize)
	if err != nil {
		return nil, err
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading %d byte frame: %w", n, err)
	}
	return Decode(body)
}

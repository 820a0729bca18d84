package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/udisondev/livemap/internal/constants"
)

// ErrMessageTooLarge is returned when a length header exceeds the limit.
var ErrMessageTooLarge = errors.New("message too large")

// ReadMessage reads one framed message from r and returns its body.
// buf is reused when large enough.
func ReadMessage(r io.Reader, buf []byte, maxSize int) ([]byte, error) {
	var header [constants.MessageHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading message header: %w", err)
	}

	size := int(binary.LittleEndian.Uint32(header[:]))
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, maxSize)
	}
	if size == 0 {
		return nil, fmt.Errorf("empty message: %w", ErrShortRead)
	}

	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading message body (%d bytes): %w", size, err)
	}
	return buf, nil
}

// SplitFrame validates a complete frame (as carried in one websocket message)
// and returns its body.
func SplitFrame(frame []byte, maxSize int) ([]byte, error) {
	if len(frame) < constants.MessageHeaderSize {
		return nil, fmt.Errorf("frame header: %w", ErrShortRead)
	}
	size := int(binary.LittleEndian.Uint32(frame))
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, maxSize)
	}
	body := frame[constants.MessageHeaderSize:]
	if size == 0 || len(body) != size {
		return nil, fmt.Errorf("frame size %d does not match body %d: %w", size, len(body), ErrShortRead)
	}
	return body, nil
}

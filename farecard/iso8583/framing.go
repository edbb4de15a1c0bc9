package iso8583

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxMessageLength = 1<<16 - 1

// ReadMessageLength reads the 2-byte big-endian length header.
func ReadMessageLength(r io.Reader) (int, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(header[:])), nil
}

// WriteMessageLength writes the 2-byte big-endian length header.
func WriteMessageLength(w io.Writer, length int) (int, error) {
	if length < 0 || length > maxMessageLength {
		return 0, fmt.Errorf("message length %d out of range", length)
	}
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(length))
	return w.Write(header[:])
}

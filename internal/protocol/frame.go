package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame header marker preceding every command and response.
var header = []byte{0xFF, 0xFF}

// Validation failures surfaced by Decode. All are retryable at the session
// layer and must never reach the parser.
var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrTruncated        = errors.New("truncated frame")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Frame is one validated unit on the wire: the echoed command and its
// payload, with header, size and checksum already stripped and checked.
type Frame struct {
	Cmd     Command
	Payload []byte
}

// checksum returns the low byte of the sum of b. The gateway computes its
// checksum over every byte from the command identifier through the end of
// the payload, header excluded.
func checksum(b []byte) byte {
	var sum int
	for _, v := range b {
		sum += int(v)
	}
	return byte(sum)
}

// Encode builds a command frame. Command frames always carry a single size
// byte counting the command, size and checksum bytes plus the payload.
func Encode(cmd Command, payload []byte) []byte {
	size := byte(len(payload) + 3)
	buf := make([]byte, 0, len(payload)+5)
	buf = append(buf, header...)
	buf = append(buf, byte(cmd), size)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf[2:]))
	return buf
}

// Decode validates a response frame against the command that was issued and
// returns the extracted payload. The response must echo the issued command,
// declare a size no larger than the received data, and carry a valid
// trailing checksum.
func Decode(buf []byte, issued Command) (*Frame, error) {
	if len(buf) < 5 {
		return nil, fmt.Errorf("%w: %d bytes received", ErrTruncated, len(buf))
	}
	if buf[0] != header[0] || buf[1] != header[1] {
		return nil, fmt.Errorf("%w: bad header 0x%02X%02X", ErrTruncated, buf[0], buf[1])
	}
	cmd := Command(buf[2])
	if !cmd.Known() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, buf[2])
	}
	if cmd != issued {
		return nil, fmt.Errorf("%w: response echoes %v, expected %v", ErrUnknownCommand, cmd, issued)
	}

	var size, payloadStart int
	if cmd.WideSize() {
		size = int(binary.BigEndian.Uint16(buf[3:5]))
		payloadStart = 5
	} else {
		size = int(buf[3])
		payloadStart = 4
	}
	// size counts everything after the header including itself
	end := 2 + size
	if size < payloadStart-2+1 || end > len(buf) {
		return nil, fmt.Errorf("%w: declared size %d, received %d bytes", ErrTruncated, size, len(buf))
	}
	if got, want := checksum(buf[2:end-1]), buf[end-1]; got != want {
		return nil, fmt.Errorf("%w: calculated 0x%02X, received 0x%02X", ErrChecksumMismatch, got, want)
	}

	return &Frame{Cmd: cmd, Payload: buf[payloadStart : end-1]}, nil
}

// ResponseLength returns the total frame length declared by a response
// header, or an error if fewer than the five header bytes are present. The
// transport uses it to know when a complete frame has been received.
func ResponseLength(hdr []byte, issued Command) (int, error) {
	if len(hdr) < 5 {
		return 0, fmt.Errorf("%w: %d header bytes", ErrTruncated, len(hdr))
	}
	if issued.WideSize() {
		return 2 + int(binary.BigEndian.Uint16(hdr[3:5])), nil
	}
	return 2 + int(hdr[3]), nil
}

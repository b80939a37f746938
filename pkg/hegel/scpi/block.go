package scpi

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrBadBlock is returned when a definite-length block header is malformed.
var ErrBadBlock = errors.New("malformed block header")

// EncodeBlock frames payload as an IEEE 488.2 definite-length binary
// block: '#', one digit giving the length of the length field, the
// decimal payload length, then the payload.
func EncodeBlock(payload []byte) []byte {
	lengthStr := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(lengthStr)+len(payload))
	out = append(out, '#')
	out = append(out, byte('0'+len(lengthStr)))
	out = append(out, lengthStr...)
	out = append(out, payload...)
	return out
}

// DecodeBlock unframes a definite-length binary block, returning the
// payload and the number of bytes consumed. Trailing bytes (such as a
// termination character the transport did not strip) are ignored.
func DecodeBlock(data []byte) (payload []byte, consumed int, err error) {
	if len(data) < 2 || data[0] != '#' {
		return nil, 0, fmt.Errorf("%w: missing '#' prefix", ErrBadBlock)
	}

	nDigits := int(data[1] - '0')
	if nDigits < 1 || nDigits > 9 {
		return nil, 0, fmt.Errorf("%w: bad digit count %q", ErrBadBlock, data[1])
	}
	if len(data) < 2+nDigits {
		return nil, 0, fmt.Errorf("%w: truncated length field", ErrBadBlock)
	}

	length, err := strconv.Atoi(string(data[2 : 2+nDigits]))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: non-numeric length: %v", ErrBadBlock, err)
	}

	start := 2 + nDigits
	if len(data) < start+length {
		return nil, 0, fmt.Errorf("%w: payload shorter than declared length %d", ErrBadBlock, length)
	}

	return data[start : start+length], start + length, nil
}

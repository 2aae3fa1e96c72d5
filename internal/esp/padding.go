package esp

import "fmt"

// encodeTail writes payload followed by the RFC 4303 self-describing pad
// (1, 2, ..., padLength), the pad-length byte, and the next-header byte
// into dst. dst must be exactly tailLen(len(payload), blockSize) bytes.
// Returns the pad length actually used.
func encodeTail(dst, payload []byte, blockSize int, nextHeader uint8) int {
	padLength := computePadLength(len(payload), blockSize)

	n := copy(dst, payload)
	for i := 1; i <= padLength; i++ {
		dst[n] = byte(i) //nolint:gosec // pad byte i is always <= 255 by construction
		n++
	}
	dst[n] = byte(padLength) //nolint:gosec // padLength <= blockSize < 256
	n++
	dst[n] = nextHeader
	n++

	return padLength
}

// computePadLength returns the pad length in 1..blockSize that brings
// payloadLen+2+padLength to a multiple of blockSize. The result is never
// zero: a payload that already lands on a block boundary still gets a
// full block of padding, per RFC 4303's self-describing trailer.
func computePadLength(payloadLen, blockSize int) int {
	return blockSize - ((payloadLen + 2) % blockSize)
}

// tailLen returns the total plaintext-tail length (payload + pad +
// pad-length byte + next-header byte) for a given payload length and
// block size.
func tailLen(payloadLen, blockSize int) int {
	return payloadLen + 2 + computePadLength(payloadLen, blockSize)
}

// decodeTail validates and strips the self-describing pad from plaintext,
// returning the leading payload slice and the next-header byte. plaintext
// is wiped by the caller on any error path; decodeTail itself never
// allocates or copies.
func decodeTail(plaintext []byte) (payload []byte, nextHeader uint8, err error) {
	if len(plaintext) < 2 {
		return nil, 0, fmt.Errorf("decode tail: plaintext len %d < 2: %w",
			len(plaintext), ErrBadPadding)
	}

	nextHeader = plaintext[len(plaintext)-1]
	padLength := int(plaintext[len(plaintext)-2])

	if padLength+2 > len(plaintext) {
		return nil, 0, fmt.Errorf(
			"decode tail: pad length %d + 2 exceeds plaintext len %d: %w",
			padLength, len(plaintext), ErrBadPadding,
		)
	}

	payloadEnd := len(plaintext) - 2 - padLength
	padStart := payloadEnd

	for i := 0; i < padLength; i++ {
		if plaintext[padStart+i] != byte(i+1) { //nolint:gosec // i+1 <= padLength <= 255
			return nil, 0, fmt.Errorf(
				"decode tail: pad byte %d has value %d, want %d: %w",
				i, plaintext[padStart+i], i+1, ErrBadPadding,
			)
		}
	}

	return plaintext[:payloadEnd], nextHeader, nil
}

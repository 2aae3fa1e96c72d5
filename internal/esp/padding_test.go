package esp

import (
	"errors"
	"testing"
)

func TestEncodeDecodeTailRoundTrip(t *testing.T) {
	t.Parallel()

	for payloadLen := 0; payloadLen < 40; payloadLen++ {
		for _, blockSize := range []int{8, 16} {
			payload := make([]byte, payloadLen)
			for i := range payload {
				payload[i] = byte(i + 1)
			}

			dst := make([]byte, tailLen(payloadLen, blockSize))
			padLen := encodeTail(dst, payload, blockSize, NextHeaderIPv4)

			if gotLen := len(dst); gotLen%blockSize != 0 {
				t.Fatalf("payloadLen=%d block=%d: tail len %d not block-aligned",
					payloadLen, blockSize, gotLen)
			}
			if padLen < 1 || padLen > blockSize {
				t.Fatalf("payloadLen=%d block=%d: pad length %d out of [1,%d]",
					payloadLen, blockSize, padLen, blockSize)
			}

			got, nextHeader, err := decodeTail(dst)
			if err != nil {
				t.Fatalf("payloadLen=%d block=%d: decodeTail: %v", payloadLen, blockSize, err)
			}
			if nextHeader != NextHeaderIPv4 {
				t.Errorf("nextHeader = %d, want %d", nextHeader, NextHeaderIPv4)
			}
			if string(got) != string(payload) {
				t.Errorf("payloadLen=%d block=%d: round-trip mismatch", payloadLen, blockSize)
			}
		}
	}
}

func TestDecodeTailRejectsBadPadding(t *testing.T) {
	t.Parallel()

	// Matches scenario S6: pad_length is 3, so the pad bytes should read
	// 1,2,3 but read 1,2,4.
	plaintext := []byte{0x01, 0x02, 0x04, 0x03, 0x04}
	_, _, err := decodeTail(plaintext)
	if !errors.Is(err, ErrBadPadding) {
		t.Fatalf("decodeTail err = %v, want ErrBadPadding", err)
	}
}

func TestDecodeTailRejectsOversizedPadLength(t *testing.T) {
	t.Parallel()

	// pad_length byte claims 200 pad bytes in a 3-byte plaintext.
	plaintext := []byte{0xAA, 200, 0x04}
	_, _, err := decodeTail(plaintext)
	if !errors.Is(err, ErrBadPadding) {
		t.Fatalf("decodeTail err = %v, want ErrBadPadding", err)
	}
}

func TestDecodeTailRejectsShortPlaintext(t *testing.T) {
	t.Parallel()

	_, _, err := decodeTail([]byte{0x01})
	if !errors.Is(err, ErrBadPadding) {
		t.Fatalf("decodeTail err = %v, want ErrBadPadding", err)
	}
}

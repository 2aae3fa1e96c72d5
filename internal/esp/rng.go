package esp

import (
	"crypto/rand"
	"fmt"
)

// CryptoRNG implements RNG using crypto/rand, mirroring the reference
// repo's use of crypto/rand for discriminator and auth-sequence
// initialization.
type CryptoRNG struct{}

// Fill reads exactly len(buf) bytes from crypto/rand.
func (CryptoRNG) Fill(buf []byte) error {
	n, err := rand.Read(buf)
	if err != nil {
		return fmt.Errorf("fill random: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("fill random: got %d bytes, want %d: %w", n, len(buf), ErrShortRandom)
	}
	return nil
}

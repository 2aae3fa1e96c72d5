package esp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // G505: SHA1-96 is a standard ESP MAC (RFC 2404), not used for collision resistance
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"hash"

	"golang.org/x/crypto/blowfish"
)

// Encryptor is the capability handle the pipelines drive for confidentiality.
// Implementations must support in-place operation: Encrypt always works on
// buf in place (as the encrypt pipeline uses it), and Decrypt must accept
// dst and src occupying the same backing array, although the decrypt
// pipeline itself passes a separate plaintext buffer.
type Encryptor interface {
	// BlockSize returns the cipher's block size in bytes.
	BlockSize() int

	// IVSize returns the number of IV bytes this encryptor consumes.
	IVSize() int

	// Encrypt encrypts buf in place using iv. len(buf) must be a
	// multiple of BlockSize().
	Encrypt(buf, iv []byte) error

	// Decrypt decrypts src into dst using iv. dst and src may alias.
	// len(src) must be a multiple of BlockSize().
	Decrypt(dst, src, iv []byte) error
}

// MAC is the capability handle the pipelines drive for integrity.
type MAC interface {
	// ICVSize returns the length in bytes of the integrity check value.
	ICVSize() int

	// Sign computes the ICV over the logical concatenation of parts and
	// writes it to out, which must be ICVSize() bytes.
	Sign(out []byte, parts ...[]byte) error

	// Verify computes the ICV over parts and compares it to icv using a
	// constant-time comparison. Returns ErrBadMAC on mismatch.
	Verify(icv []byte, parts ...[]byte) error
}

// RNG is the capability handle for filling IVs with random bytes.
type RNG interface {
	// Fill reads exactly len(buf) random bytes into buf, or returns an
	// error if fewer are available.
	Fill(buf []byte) error
}

// ---------------------------------------------------------------------
// AES-CBC encryptor (block size 16)
// ---------------------------------------------------------------------

// AESCBCEncryptor implements Encryptor using AES in CBC mode. Key must be
// 16, 24, or 32 bytes (AES-128/192/256).
type AESCBCEncryptor struct {
	key []byte
}

// NewAESCBCEncryptor constructs an AES-CBC Encryptor over key.
func NewAESCBCEncryptor(key []byte) (*AESCBCEncryptor, error) {
	if _, err := aes.NewCipher(key); err != nil {
		return nil, fmt.Errorf("new aes-cbc encryptor: %w", err)
	}
	return &AESCBCEncryptor{key: key}, nil
}

func (e *AESCBCEncryptor) BlockSize() int { return aes.BlockSize }
func (e *AESCBCEncryptor) IVSize() int    { return aes.BlockSize }

func (e *AESCBCEncryptor) Encrypt(buf, iv []byte) error {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return fmt.Errorf("aes-cbc encrypt: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return nil
}

func (e *AESCBCEncryptor) Decrypt(dst, src, iv []byte) error {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return fmt.Errorf("aes-cbc decrypt: %w", err)
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(dst, src)
	return nil
}

// ---------------------------------------------------------------------
// Blowfish-CBC encryptor (block size 8)
// ---------------------------------------------------------------------

// BlowfishCBCEncryptor implements Encryptor using Blowfish in CBC mode.
// Key must be 1-56 bytes.
type BlowfishCBCEncryptor struct {
	key []byte
}

// NewBlowfishCBCEncryptor constructs a Blowfish-CBC Encryptor over key.
func NewBlowfishCBCEncryptor(key []byte) (*BlowfishCBCEncryptor, error) {
	if _, err := blowfish.NewCipher(key); err != nil {
		return nil, fmt.Errorf("new blowfish-cbc encryptor: %w", err)
	}
	return &BlowfishCBCEncryptor{key: key}, nil
}

func (e *BlowfishCBCEncryptor) BlockSize() int { return blowfish.BlockSize }
func (e *BlowfishCBCEncryptor) IVSize() int    { return blowfish.BlockSize }

func (e *BlowfishCBCEncryptor) Encrypt(buf, iv []byte) error {
	block, err := blowfish.NewCipher(e.key)
	if err != nil {
		return fmt.Errorf("blowfish-cbc encrypt: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return nil
}

func (e *BlowfishCBCEncryptor) Decrypt(dst, src, iv []byte) error {
	block, err := blowfish.NewCipher(e.key)
	if err != nil {
		return fmt.Errorf("blowfish-cbc decrypt: %w", err)
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(dst, src)
	return nil
}

// ---------------------------------------------------------------------
// HMAC MACs
// ---------------------------------------------------------------------

// HMACSHA1_96 implements MAC as HMAC-SHA1 truncated to 12 bytes (RFC 2404,
// the traditional ESP authentication algorithm).
type HMACSHA1_96 struct { //nolint:revive // RFC-cited name kept verbatim
	key []byte
}

// NewHMACSHA1_96 constructs an HMAC-SHA1-96 MAC over key.
func NewHMACSHA1_96(key []byte) *HMACSHA1_96 { //nolint:revive
	return &HMACSHA1_96{key: key}
}

const icvSHA1_96 = 12

func (m *HMACSHA1_96) ICVSize() int { return icvSHA1_96 }

func (m *HMACSHA1_96) Sign(out []byte, parts ...[]byte) error {
	return signHMAC(sha1.New, m.key, out, icvSHA1_96, parts)
}

func (m *HMACSHA1_96) Verify(icv []byte, parts ...[]byte) error {
	return verifyHMAC(sha1.New, m.key, icv, icvSHA1_96, parts)
}

// HMACSHA256_128 implements MAC as HMAC-SHA256 truncated to 16 bytes.
type HMACSHA256_128 struct { //nolint:revive // RFC-cited name kept verbatim
	key []byte
}

// NewHMACSHA256_128 constructs an HMAC-SHA256-128 MAC over key.
func NewHMACSHA256_128(key []byte) *HMACSHA256_128 { //nolint:revive
	return &HMACSHA256_128{key: key}
}

const icvSHA256_128 = 16

func (m *HMACSHA256_128) ICVSize() int { return icvSHA256_128 }

func (m *HMACSHA256_128) Sign(out []byte, parts ...[]byte) error {
	return signHMAC(sha256.New, m.key, out, icvSHA256_128, parts)
}

func (m *HMACSHA256_128) Verify(icv []byte, parts ...[]byte) error {
	return verifyHMAC(sha256.New, m.key, icv, icvSHA256_128, parts)
}

// signHMAC computes HMAC(newHash, key, parts...) truncated to icvLen and
// writes it into out.
func signHMAC(newHash func() hash.Hash, key, out []byte, icvLen int, parts [][]byte) error {
	if len(out) != icvLen {
		return fmt.Errorf("sign hmac: out buffer len %d, want %d", len(out), icvLen)
	}

	mac := hmac.New(newHash, key)
	for _, p := range parts {
		if _, err := mac.Write(p); err != nil {
			return fmt.Errorf("sign hmac: %w", err)
		}
	}

	copy(out, mac.Sum(nil)[:icvLen])
	return nil
}

// verifyHMAC recomputes HMAC(newHash, key, parts...) and compares it to
// icv in constant time.
func verifyHMAC(newHash func() hash.Hash, key, icv []byte, icvLen int, parts [][]byte) error {
	if len(icv) != icvLen {
		return fmt.Errorf("verify hmac: icv len %d, want %d: %w", len(icv), icvLen, ErrBadMAC)
	}

	computed := make([]byte, icvLen)
	if err := signHMAC(newHash, key, computed, icvLen, parts); err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(computed, icv) != 1 {
		return ErrBadMAC
	}
	return nil
}

package commands

import (
	"errors"
	"testing"

	"github.com/dantte-lp/espd/internal/config"
)

func TestGenerateKeyPair(t *testing.T) {
	t.Parallel()

	pair, passphrase, err := generateKeyPair("aes-cbc", "hmac-sha1-96", "")
	if err != nil {
		t.Fatalf("generateKeyPair: %v", err)
	}
	if passphrase == "" {
		t.Error("expected a generated passphrase when none was supplied")
	}

	if pair.Out.Direction != "out" || pair.In.Direction != "in" {
		t.Errorf("directions = %q/%q, want out/in", pair.Out.Direction, pair.In.Direction)
	}
	if pair.Out.SPI == pair.In.SPI {
		t.Error("out and in SPIs must not collide")
	}
	if pair.Out.CipherKeyHex == pair.In.CipherKeyHex {
		t.Error("out and in cipher keys must not collide despite sharing a passphrase")
	}

	if _, err := pair.Out.SPIValue(); err != nil {
		t.Errorf("out SPI does not decode: %v", err)
	}
	if _, err := pair.Out.CipherKey(); err != nil {
		t.Errorf("out cipher key does not decode: %v", err)
	}
	if _, err := pair.Out.MACKey(); err != nil {
		t.Errorf("out mac key does not decode: %v", err)
	}
}

func TestGenerateKeyPairExplicitPassphrase(t *testing.T) {
	t.Parallel()

	pair, passphrase, err := generateKeyPair("aes-cbc", "hmac-sha1-96", "correct horse battery staple")
	if err != nil {
		t.Fatalf("generateKeyPair: %v", err)
	}
	if passphrase != "correct horse battery staple" {
		t.Errorf("passphrase = %q, want echoed input", passphrase)
	}
	if pair.Out.CipherKeyHex == "" || pair.In.CipherKeyHex == "" {
		t.Error("expected derived cipher keys to be non-empty")
	}
}

func TestGenerateKeyPairUnknownCipher(t *testing.T) {
	t.Parallel()

	if _, _, err := generateKeyPair("xor", "hmac-sha1-96", ""); !errors.Is(err, config.ErrUnknownCipher) {
		t.Errorf("err = %v, want ErrUnknownCipher", err)
	}
}

func TestGenerateKeyPairUnknownMAC(t *testing.T) {
	t.Parallel()

	if _, _, err := generateKeyPair("aes-cbc", "crc32", ""); !errors.Is(err, config.ErrUnknownMAC) {
		t.Errorf("err = %v, want ErrUnknownMAC", err)
	}
}

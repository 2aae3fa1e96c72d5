package sa

import (
	"fmt"

	"github.com/dantte-lp/espd/internal/config"
	"github.com/dantte-lp/espd/internal/esp"
)

// BuildFromConfig constructs the SPI, Direction and *esp.SA described by sc,
// wiring the configured cipher/MAC implementations and a crypto/rand-backed
// RNG. Mirrors the reference daemon's configSessionToBFD conversion step,
// generalized from BFD session defaults to ESP SA primitive selection.
func BuildFromConfig(sc config.SAConfig) (uint32, Direction, *esp.SA, error) {
	spi, err := sc.SPIValue()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("build sa: %w", err)
	}

	dir, err := parseDirection(sc.Direction)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("build sa spi=%08x: %w", spi, err)
	}

	enc, err := buildEncryptor(sc)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("build sa spi=%08x: %w", spi, err)
	}

	mac, err := buildMAC(sc)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("build sa spi=%08x: %w", spi, err)
	}

	entry, err := esp.NewSA(spi, enc, mac, esp.CryptoRNG{}, sc.WindowSize)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("build sa spi=%08x: %w", spi, err)
	}

	return spi, dir, entry, nil
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case "in":
		return DirectionIn, nil
	case "out":
		return DirectionOut, nil
	default:
		return 0, fmt.Errorf("direction %q: %w", s, config.ErrInvalidDirection)
	}
}

func buildEncryptor(sc config.SAConfig) (esp.Encryptor, error) {
	key, err := sc.CipherKey()
	if err != nil {
		return nil, err
	}

	switch sc.Cipher {
	case "aes-cbc":
		return esp.NewAESCBCEncryptor(key)
	case "blowfish-cbc":
		return esp.NewBlowfishCBCEncryptor(key)
	default:
		return nil, fmt.Errorf("cipher %q: %w", sc.Cipher, config.ErrUnknownCipher)
	}
}

func buildMAC(sc config.SAConfig) (esp.MAC, error) {
	key, err := sc.MACKey()
	if err != nil {
		return nil, err
	}

	switch sc.MAC {
	case "hmac-sha1-96":
		return esp.NewHMACSHA1_96(key), nil
	case "hmac-sha256-128":
		return esp.NewHMACSHA256_128(key), nil
	default:
		return nil, fmt.Errorf("mac %q: %w", sc.MAC, config.ErrUnknownMAC)
	}
}

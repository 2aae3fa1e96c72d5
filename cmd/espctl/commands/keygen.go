package commands

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/pbkdf2"
	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/espd/internal/config"
)

// pbkdf2Iterations is the PBKDF2 iteration count used to stretch the
// operator-supplied (or freshly generated) passphrase into SA key
// material. IKE-style negotiation is out of scope for this engine (see
// internal/esp's Non-goals); this derivation only ever runs here, in the
// CLI, never inside the core pipeline.
const pbkdf2Iterations = 210_000

// saltLen is the PBKDF2 salt length in bytes, stored alongside the
// derived key material is unnecessary here -- salts are generated fresh
// per key and folded into the derivation only, not persisted, since the
// printed output already carries the final key bytes.
const saltLen = 16

// cipherKeyLen maps a cipher name to its key length in bytes. aes-cbc uses
// AES-128; blowfish-cbc uses a 16-byte key, well within its 1-56 byte range.
var cipherKeyLen = map[string]int{
	"aes-cbc":      16,
	"blowfish-cbc": 16,
}

// macKeyLen maps a MAC name to a conservative key length in bytes.
var macKeyLen = map[string]int{
	"hmac-sha1-96":    20,
	"hmac-sha256-128": 32,
}

// keygenPair bundles the two unidirectional SAConfig entries (out/in) a
// single tunnel endpoint needs -- the peer installs the same pair with
// directions swapped.
type keygenPair struct {
	Out config.SAConfig `yaml:"out" json:"out"`
	In  config.SAConfig `yaml:"in" json:"in"`
}

func keygenCmd() *cobra.Command {
	var cipher, mac, passphrase string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a local/peer SA key pair for demo or test use",
		Long: "keygen derives SA key material from a passphrase via PBKDF2 and pairs " +
			"it with random SPIs, producing one outbound and one inbound SAConfig " +
			"entry. Paste the result into espd's sas: list; the peer installs the " +
			"same SPI/key material with directions swapped. With no --passphrase a " +
			"fresh random one is generated and printed alongside the keys.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			pair, usedPassphrase, err := generateKeyPair(cipher, mac, passphrase)
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			if passphrase == "" {
				fmt.Printf("# generated passphrase (store it; not recoverable from the keys below): %s\n", usedPassphrase)
			}
			return printKeygenPair(pair)
		},
	}

	cmd.Flags().StringVar(&cipher, "cipher", "aes-cbc", "cipher: aes-cbc, blowfish-cbc")
	cmd.Flags().StringVar(&mac, "mac", "hmac-sha1-96", "mac: hmac-sha1-96, hmac-sha256-128")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase to derive keys from (random if omitted)")

	return cmd
}

// generateKeyPair builds the out/in SAConfig pair for cipher/mac, deriving
// cipher and MAC keys from passphrase via PBKDF2-HMAC-SHA256. An empty
// passphrase is replaced with a freshly generated random one, returned as
// usedPassphrase so the caller can surface it to the operator.
func generateKeyPair(cipher, mac, passphrase string) (pair keygenPair, usedPassphrase string, err error) {
	if !config.ValidCiphers[cipher] {
		return keygenPair{}, "", fmt.Errorf("cipher %q: %w", cipher, config.ErrUnknownCipher)
	}
	if !config.ValidMACs[mac] {
		return keygenPair{}, "", fmt.Errorf("mac %q: %w", mac, config.ErrUnknownMAC)
	}

	usedPassphrase = passphrase
	if usedPassphrase == "" {
		usedPassphrase, err = randomHex(32)
		if err != nil {
			return keygenPair{}, "", err
		}
	}

	spiOut, err := randomHex(4)
	if err != nil {
		return keygenPair{}, "", err
	}
	spiIn, err := randomHex(4)
	if err != nil {
		return keygenPair{}, "", err
	}

	cipherKeyOut, err := derivedKeyHex(usedPassphrase, cipherKeyLen[cipher])
	if err != nil {
		return keygenPair{}, "", err
	}
	cipherKeyIn, err := derivedKeyHex(usedPassphrase, cipherKeyLen[cipher])
	if err != nil {
		return keygenPair{}, "", err
	}
	macKeyOut, err := derivedKeyHex(usedPassphrase, macKeyLen[mac])
	if err != nil {
		return keygenPair{}, "", err
	}
	macKeyIn, err := derivedKeyHex(usedPassphrase, macKeyLen[mac])
	if err != nil {
		return keygenPair{}, "", err
	}

	return keygenPair{
		Out: config.SAConfig{
			SPI: spiOut, Direction: "out",
			Cipher: cipher, CipherKeyHex: cipherKeyOut,
			MAC: mac, MACKeyHex: macKeyOut,
		},
		In: config.SAConfig{
			SPI: spiIn, Direction: "in",
			Cipher: cipher, CipherKeyHex: cipherKeyIn,
			MAC: mac, MACKeyHex: macKeyIn,
		},
	}, usedPassphrase, nil
}

// derivedKeyHex derives a keyLen-byte key from passphrase via PBKDF2 with a
// fresh random salt, returning it hex-encoded. Each call uses its own salt,
// so the four keys derived from one passphrase are independent even though
// they share an input secret.
func derivedKeyHex(passphrase string, keyLen int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate pbkdf2 salt: %w", err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
	return hex.EncodeToString(key), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func printKeygenPair(pair keygenPair) error {
	var out []byte
	var err error

	switch outputFormat {
	case "json":
		out, err = json.MarshalIndent(pair, "", "  ")
	default:
		out, err = yaml.Marshal(pair)
	}
	if err != nil {
		return fmt.Errorf("marshal key pair: %w", err)
	}

	fmt.Println(string(out))
	return nil
}

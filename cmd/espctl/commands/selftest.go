package commands

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/espd/internal/esp"
	"github.com/dantte-lp/espd/internal/sa"
)

// errSelftestRoundTripMismatch indicates the decrypted inner packet did not
// match the plaintext encrypted moments earlier.
var errSelftestRoundTripMismatch = errors.New("selftest: decrypted payload does not match original plaintext")

func selftestCmd() *cobra.Command {
	var cipher, mac string

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Exercise an encrypt/decrypt round trip against fresh in-memory SAs",
		Long: "selftest generates a throwaway SA pair, encrypts a synthetic IPv4 " +
			"payload, decrypts the resulting datagram, and reports whether the " +
			"recovered plaintext matches -- a quick sanity check that a cipher/mac " +
			"combination round-trips correctly without touching the network.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSelftest(cipher, mac)
		},
	}

	cmd.Flags().StringVar(&cipher, "cipher", "aes-cbc", "cipher: aes-cbc, blowfish-cbc")
	cmd.Flags().StringVar(&mac, "mac", "hmac-sha1-96", "mac: hmac-sha1-96, hmac-sha256-128")

	return cmd
}

func runSelftest(cipher, mac string) error {
	pair, _, err := generateKeyPair(cipher, mac, "")
	if err != nil {
		return fmt.Errorf("selftest: %w", err)
	}

	// A single SPI round-trips encrypt then decrypt through the same SA
	// state here, so only the "out" config's key material is used -- the
	// in/out split only matters once two daemons are involved.
	sc := pair.Out

	_, _, entry, err := sa.BuildFromConfig(sc)
	if err != nil {
		return fmt.Errorf("selftest: build sa: %w", err)
	}

	plaintext := syntheticIPv4Payload()

	inner, err := esp.NewInnerPacket(plaintext)
	if err != nil {
		return fmt.Errorf("selftest: %w", err)
	}

	localhost := netip.MustParseAddr("127.0.0.1")
	endpoint := esp.Endpoint{Addr: localhost, Port: 4500}

	encPkt := esp.NewPacketFromInner(endpoint, endpoint, inner)
	if res := esp.Encrypt(entry, encPkt); !res.OK() {
		return fmt.Errorf("selftest: encrypt: %s", res.Error())
	}

	raw := make([]byte, len(encPkt.Raw))
	copy(raw, encPkt.Raw)

	decPkt := esp.NewPacketFromBytes(endpoint, endpoint, raw)
	res := esp.Decrypt(entry, decPkt)
	if !res.OK() {
		return fmt.Errorf("selftest: decrypt: %s", res.Error())
	}

	recovered := decPkt.GetPayload()
	if recovered == nil || !bytes.Equal(recovered.Encoding(), plaintext) {
		return errSelftestRoundTripMismatch
	}

	fmt.Printf("selftest OK: cipher=%s mac=%s datagram_bytes=%d plaintext_bytes=%d\n",
		sc.Cipher, sc.MAC, len(raw), len(plaintext))
	return nil
}

// syntheticIPv4Payload builds a minimal (not checksummed) IPv4 header
// followed by a short payload, just enough to carry a valid version
// nibble through esp.NewInnerPacket.
func syntheticIPv4Payload() []byte {
	pkt := make([]byte, 20+8)
	pkt[0] = 0x45 // version 4, IHL 5
	pkt[9] = 17   // protocol: UDP
	copy(pkt[20:], []byte("selftest"))
	return pkt
}

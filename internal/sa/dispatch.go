package sa

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dantte-lp/espd/internal/esp"
)

// ErrDatagramTooShortForSPI indicates a received datagram was too small to
// contain even the SPI field used for the initial directory lookup.
var ErrDatagramTooShortForSPI = errors.New("datagram shorter than spi field")

// DecryptInbound demultiplexes a received ESP datagram by its leading SPI
// field, looks up the matching inbound SA, and runs esp.Decrypt against
// it. This is the transport-facing entry point netio's receive loop calls
// for every datagram pulled off the socket.
//
// raw is consumed by reference into the returned *esp.Packet; the caller
// must not reuse the buffer until done with the packet.
func (m *Manager) DecryptInbound(raw []byte, src, dst esp.Endpoint) (*esp.Packet, *esp.Result) {
	if len(raw) < 4 {
		return nil, &esp.Result{Status: esp.StatusParseError, Err: fmt.Errorf("decrypt inbound: %w", ErrDatagramTooShortForSPI)}
	}
	spi := binary.BigEndian.Uint32(raw[:4])

	entry, ok := m.Lookup(spi, DirectionIn)
	if !ok {
		return nil, &esp.Result{Status: esp.StatusNotFound, Err: fmt.Errorf("decrypt inbound: spi=%08x: %w", spi, ErrNotFound)}
	}

	pkt := esp.NewPacketFromBytes(src, dst, raw)
	res := esp.Decrypt(entry, pkt)
	if res.OK() && m.metrics != nil {
		m.metrics.IncPacketsDecrypted(hex.EncodeToString(spiBytes(spi)), cipherLabel(entry.Encryptor), macLabel(entry.MAC))
	}
	return pkt, res
}

// EncryptOutbound looks up the outbound SA for spi and runs esp.Encrypt
// against pkt in place.
func (m *Manager) EncryptOutbound(spi uint32, pkt *esp.Packet) *esp.Result {
	entry, ok := m.Lookup(spi, DirectionOut)
	if !ok {
		return &esp.Result{Status: esp.StatusNotFound, Err: fmt.Errorf("encrypt outbound: spi=%08x: %w", spi, ErrNotFound)}
	}
	res := esp.Encrypt(entry, pkt)
	if res.OK() && m.metrics != nil {
		m.metrics.IncPacketsEncrypted(hex.EncodeToString(spiBytes(spi)), cipherLabel(entry.Encryptor), macLabel(entry.MAC))
	}
	return res
}

// cipherLabel renders a metric-friendly name for an Encryptor capability
// handle, matching the cipher names accepted by config.SAConfig.Cipher.
func cipherLabel(enc esp.Encryptor) string {
	switch enc.(type) {
	case *esp.AESCBCEncryptor:
		return "aes-cbc"
	case *esp.BlowfishCBCEncryptor:
		return "blowfish-cbc"
	default:
		return "unknown"
	}
}

// macLabel renders a metric-friendly name for a MAC capability handle,
// matching the MAC names accepted by config.SAConfig.MAC.
func macLabel(mac esp.MAC) string {
	switch mac.(type) {
	case *esp.HMACSHA1_96:
		return "hmac-sha1-96"
	case *esp.HMACSHA256_128:
		return "hmac-sha256-128"
	default:
		return "unknown"
	}
}

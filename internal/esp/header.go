package esp

import (
	"encoding/binary"
	"fmt"
)

// headerSize is the fixed 8-byte SPI+sequence ESP header (RFC 4303
// Section 2).
const headerSize = 8

// writeHeader encodes spi and seq as the 8-byte big-endian ESP header at
// the front of buf. buf must be at least headerSize bytes.
func writeHeader(buf []byte, spi, seq uint32) {
	binary.BigEndian.PutUint32(buf[0:4], spi)
	binary.BigEndian.PutUint32(buf[4:8], seq)
}

// readHeader decodes the SPI and sequence number from the front of buf.
func readHeader(buf []byte) (spi, seq uint32, err error) {
	if len(buf) < headerSize {
		return 0, 0, fmt.Errorf("read header: got %d bytes, need %d: %w",
			len(buf), headerSize, ErrShortHeader)
	}

	spi = binary.BigEndian.Uint32(buf[0:4])
	seq = binary.BigEndian.Uint32(buf[4:8])

	return spi, seq, nil
}

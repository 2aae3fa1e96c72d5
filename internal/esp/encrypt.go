package esp

import (
	"errors"
	"fmt"
)

// Encrypt runs the encrypt pipeline (RFC 4303 Section 3.3) against pkt,
// which must carry a decoded inner packet (NewPacketFromInner). On
// success pkt.Raw is replaced with the complete ESP datagram and the
// result's Status is StatusSuccess. On any failure pkt.Raw is left empty
// and any scratch buffer allocated along the way is wiped before release.
func Encrypt(sa *SA, pkt *Packet) *Result {
	inner := pkt.GetPayload()
	if inner == nil {
		return failed(fmt.Errorf("encrypt: %w", ErrNoPayload))
	}

	seq, err := sa.nextSeqNo()
	if err != nil {
		return failed(fmt.Errorf("encrypt: %w", err))
	}

	blockSize := sa.Encryptor.BlockSize()
	ivSize := sa.Encryptor.IVSize()
	icvSize := sa.MAC.ICVSize()

	payload := inner.Encoding()
	nextHeader := pkt.GetNextHeader()
	plaintextLen := tailLen(len(payload), blockSize)

	total := headerSize + ivSize + plaintextLen + icvSize
	buf := make([]byte, total)

	writeHeader(buf[:headerSize], sa.SPI, seq)

	ivRegion := buf[headerSize : headerSize+ivSize]
	if err := sa.RNG.Fill(ivRegion); err != nil {
		wipe(buf)
		if errors.Is(err, ErrShortRandom) {
			return failed(fmt.Errorf("encrypt: fill iv: %w", err))
		}
		return notFound(fmt.Errorf("encrypt: fill iv: %w", err))
	}

	ciphertextRegion := buf[headerSize+ivSize : headerSize+ivSize+plaintextLen]
	encodeTail(ciphertextRegion, payload, blockSize, nextHeader)

	if err := sa.Encryptor.Encrypt(ciphertextRegion, ivRegion); err != nil {
		wipe(buf)
		return failed(fmt.Errorf("encrypt: %w", err))
	}

	icvRegion := buf[headerSize+ivSize+plaintextLen:]
	signed := buf[:headerSize+ivSize+plaintextLen]
	if err := sa.MAC.Sign(icvRegion, signed); err != nil {
		wipe(buf)
		return failed(fmt.Errorf("encrypt: sign: %w", err))
	}

	pkt.Raw = buf

	return success()
}

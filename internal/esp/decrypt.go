package esp

import "fmt"

// Decrypt runs the decrypt pipeline (RFC 4303 Section 3.4) against pkt,
// which must carry a received datagram (NewPacketFromBytes). sa is the
// security association already selected by the caller via the datagram's
// SPI -- SPI-to-SA lookup is a collaborator's job, not this pipeline's.
//
// Steps run in the strict order mandated by the wire spec: header parse,
// length validation, anti-replay pre-check, MAC verification, decrypt,
// tail decode, inner-packet decode, then anti-replay commit. Any failing
// step aborts the rest and reports the matching Status; on any failure
// past the initial slice split, scratch plaintext is wiped before return.
func Decrypt(sa *SA, pkt *Packet) *Result {
	datagram := pkt.Raw

	_, seq, err := readHeader(datagram)
	if err != nil {
		return parseError(fmt.Errorf("decrypt: %w", err))
	}

	blockSize := sa.Encryptor.BlockSize()
	ivSize := sa.Encryptor.IVSize()
	icvSize := sa.MAC.ICVSize()

	if len(datagram) < headerSize+ivSize+icvSize+blockSize {
		return parseError(fmt.Errorf(
			"decrypt: datagram len %d shorter than header+iv+block+icv: %w",
			len(datagram), ErrShortDatagram,
		))
	}

	ciphertextLen := len(datagram) - headerSize - ivSize - icvSize
	if ciphertextLen%blockSize != 0 {
		return parseError(fmt.Errorf(
			"decrypt: ciphertext len %d not a multiple of block size %d: %w",
			ciphertextLen, blockSize, ErrMisalignedCiphertext,
		))
	}

	header := datagram[:headerSize]
	iv := datagram[headerSize : headerSize+ivSize]
	ciphertext := datagram[headerSize+ivSize : headerSize+ivSize+ciphertextLen]
	icv := datagram[headerSize+ivSize+ciphertextLen:]

	if !sa.checkReplay(seq) {
		return verifyError(fmt.Errorf("decrypt: seq %d: %w", seq, ErrReplayed))
	}

	if err := sa.MAC.Verify(icv, header, iv, ciphertext); err != nil {
		return failed(fmt.Errorf("decrypt: %w", err))
	}

	plaintext := make([]byte, ciphertextLen)
	if err := sa.Encryptor.Decrypt(plaintext, ciphertext, iv); err != nil {
		wipe(plaintext)
		return failed(fmt.Errorf("decrypt: %w", err))
	}

	payload, nextHeader, err := decodeTail(plaintext)
	if err != nil {
		wipe(plaintext)
		return parseError(fmt.Errorf("decrypt: %w", err))
	}

	inner, err := NewInnerPacket(payload)
	if err != nil {
		wipe(plaintext)
		return parseError(fmt.Errorf("decrypt: %w", err))
	}

	pkt.setDecodedInner(inner, nextHeader)

	sa.commitReplay(seq)

	return success()
}

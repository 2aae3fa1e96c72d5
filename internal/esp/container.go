package esp

import (
	"net/netip"
	"sync"
)

// Endpoint is a transport-layer source or destination for a packet
// container. The core never dials or binds these -- it only carries them
// for the caller's transport layer to act on.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// InnerPacket is the decoded inner IP packet exposed after a successful
// decrypt, or supplied by the caller before an encrypt.
type InnerPacket struct {
	version uint8
	bytes   []byte
}

// NewInnerPacket validates b's first nibble as an IP version (4 or 6) and
// wraps it. b is not copied; callers that need an independent copy should
// clone the returned InnerPacket.
func NewInnerPacket(b []byte) (*InnerPacket, error) {
	if len(b) == 0 {
		return nil, ErrUnknownIPVersion
	}
	version := b[0] >> 4
	if version != 4 && version != 6 {
		return nil, ErrUnknownIPVersion
	}
	return &InnerPacket{version: version, bytes: b}, nil
}

// Version returns 4 or 6.
func (p *InnerPacket) Version() uint8 { return p.version }

// Encoding returns the packet's raw bytes.
func (p *InnerPacket) Encoding() []byte { return p.bytes }

// Clone returns a deep copy of the inner packet.
func (p *InnerPacket) Clone() *InnerPacket {
	cp := make([]byte, len(p.bytes))
	copy(cp, p.bytes)
	return &InnerPacket{version: p.version, bytes: cp}
}

// nextHeaderForVersion maps an inner IP version to the ESP next-header
// value (RFC 4303 uses the IANA protocol numbers for IPv4/IPv6).
func nextHeaderForVersion(version uint8) uint8 {
	switch version {
	case 4:
		return NextHeaderIPv4
	case 6:
		return NextHeaderIPv6
	default:
		return NextHeaderNone
	}
}

// Next-header values used by this core (IANA assigned protocol numbers).
const (
	NextHeaderIPv4 uint8 = 4
	NextHeaderIPv6 uint8 = 41
	NextHeaderNone uint8 = 59
)

// Packet is the pipeline's packet container: source/destination
// endpoints, the raw datagram buffer, and -- after a successful decrypt,
// or before an encrypt -- the decoded inner packet and next-header byte.
//
// Ownership is exclusive: once handed to Encrypt or Decrypt, the caller
// must not read or write Raw concurrently until the call returns.
type Packet struct {
	Src, Dst   Endpoint
	Raw        []byte
	inner      *InnerPacket
	nextHeader uint8
	hasInner   bool
}

// NewPacketFromBytes constructs a Packet for the decrypt path from
// received datagram bytes.
func NewPacketFromBytes(src, dst Endpoint, raw []byte) *Packet {
	return &Packet{Src: src, Dst: dst, Raw: raw}
}

// NewPacketFromInner constructs a Packet for the encrypt path from an
// inner IP packet. Raw starts empty and is populated by Encrypt.
func NewPacketFromInner(src, dst Endpoint, inner *InnerPacket) *Packet {
	return &Packet{
		Src: src, Dst: dst,
		inner:      inner,
		nextHeader: nextHeaderForVersion(inner.Version()),
		hasInner:   true,
	}
}

// GetNextHeader returns the next-header byte. Valid after a successful
// decrypt or when constructed via NewPacketFromInner.
func (p *Packet) GetNextHeader() uint8 { return p.nextHeader }

// GetPayload returns the decoded inner packet, or nil if none has been
// decoded or supplied yet.
func (p *Packet) GetPayload() *InnerPacket {
	if !p.hasInner {
		return nil
	}
	return p.inner
}

// ExtractPayload transfers ownership of the decoded inner packet to the
// caller, leaving this container pointing at none.
func (p *Packet) ExtractPayload() (*InnerPacket, error) {
	if !p.hasInner {
		return nil, ErrNoPayload
	}
	inner := p.inner
	p.inner = nil
	p.hasInner = false
	return inner, nil
}

// setDecodedInner installs the decrypt pipeline's decoded inner packet.
func (p *Packet) setDecodedInner(inner *InnerPacket, nextHeader uint8) {
	p.inner = inner
	p.nextHeader = nextHeader
	p.hasInner = true
}

// SkipPrefix advances Raw past a leading prefix of n bytes, such as the
// four-byte non-ESP marker RFC 3948 UDP encapsulation prepends ahead of
// the SPI field, or any other transport-specific framing a caller strips
// before handing the datagram to Decrypt. It returns ErrShortDatagram if
// n exceeds the buffer's length.
func (p *Packet) SkipPrefix(n int) error {
	if n < 0 || n > len(p.Raw) {
		return ErrShortDatagram
	}
	p.Raw = p.Raw[n:]
	return nil
}

// Clone returns a deep copy of the packet, including its raw buffer and
// any decoded inner packet.
func (p *Packet) Clone() *Packet {
	cp := &Packet{Src: p.Src, Dst: p.Dst, nextHeader: p.nextHeader, hasInner: p.hasInner}
	if p.Raw != nil {
		cp.Raw = make([]byte, len(p.Raw))
		copy(cp.Raw, p.Raw)
	}
	if p.hasInner {
		cp.inner = p.inner.Clone()
	}
	return cp
}

// Destroy wipes any buffer that may hold plaintext or ciphertext and
// releases references, making the container safe to drop or return to a
// pool.
func (p *Packet) Destroy() {
	wipe(p.Raw)
	p.Raw = nil
	if p.hasInner {
		wipe(p.inner.bytes)
	}
	p.inner = nil
	p.hasInner = false
	p.nextHeader = 0
}

// BufferPool reuses datagram-sized byte slices across Packet lifetimes,
// mirroring the reference codec's sync.Pool-based buffer reuse for
// zero-allocation packet I/O.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool constructs a BufferPool whose Get returns slices with the
// given initial capacity.
func NewBufferPool(capacity int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, 0, capacity)
				return &b
			},
		},
	}
}

// Get returns a zero-length buffer with at least the pool's configured
// capacity.
func (bp *BufferPool) Get() []byte {
	b := bp.pool.Get().(*[]byte)
	return (*b)[:0]
}

// Put wipes and returns a buffer to the pool.
func (bp *BufferPool) Put(b []byte) {
	wipe(b)
	b = b[:0]
	bp.pool.Put(&b)
}

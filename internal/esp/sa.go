package esp

import "sync"

// SA is a unidirectional security association context: the paired
// encryptor/MAC/RNG primitive handles plus the sequence cursor (egress)
// and anti-replay window (ingress) for one SPI.
//
// A single *SA is shared between whatever encrypt and decrypt callers
// operate on that SPI; window and cursor mutation is serialized by mu.
// Per the concurrency model, this lock is scoped to one SA -- never a
// package-level lock shared across SAs, so unrelated associations never
// contend with each other.
type SA struct {
	// SPI is the security parameter index this SA answers to on
	// ingress and stamps on egress.
	SPI uint32

	Encryptor Encryptor
	MAC       MAC
	RNG       RNG

	mu     sync.Mutex
	cursor SequenceCursor
	window *ReplayWindow
}

// NewSA constructs an SA for spi with the given primitives and anti-replay
// window size (0 selects DefaultWindowSize).
func NewSA(spi uint32, enc Encryptor, mac MAC, rng RNG, windowSize uint32) (*SA, error) {
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	window, err := NewReplayWindow(windowSize)
	if err != nil {
		return nil, err
	}
	return &SA{
		SPI:       spi,
		Encryptor: enc,
		MAC:       mac,
		RNG:       rng,
		window:    window,
	}, nil
}

// nextSeqNo allocates the next egress sequence number under the SA's lock.
func (sa *SA) nextSeqNo() (uint32, error) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.cursor.NextSeqNo()
}

// checkReplay performs the anti-replay Check under the SA's lock. It does
// not mutate the window; a packet that checks clean but later fails MAC
// verification must never reach commitReplay.
func (sa *SA) checkReplay(seq uint32) bool {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.window.Check(seq)
}

// commitReplay records seq as accepted under the SA's lock. Callers must
// only invoke this after checkReplay(seq) returned true and MAC
// verification has since succeeded for the same packet.
func (sa *SA) commitReplay(seq uint32) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	sa.window.Commit(seq)
}

// Highest returns the anti-replay window's current high-water mark.
func (sa *SA) Highest() uint32 {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.window.Highest()
}

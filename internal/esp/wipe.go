package esp

// wipe overwrites buf with zeroes. It is used on every path that
// transiently holds plaintext, IV, or key-adjacent scratch, so nothing
// survives past a failed pipeline call or a released pool buffer.
//
// The range loop (rather than a single clear() or a library call) is
// deliberate: it touches every byte individually so the compiler cannot
// fold the whole operation away as a dead store to a buffer that is about
// to go out of scope.
func wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

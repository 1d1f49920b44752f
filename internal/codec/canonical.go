package codec

// PutFrame writes one canonical stereo frame (two signed 32-bit
// little-endian samples) into dst, which must be at least BytesPerFrame
// bytes long. left and right must already be left-aligned into the high
// bits of a 32-bit lane by the caller.
func PutFrame(dst []byte, left, right int32) {
	putInt32LE(dst[0:4], left)
	putInt32LE(dst[4:8], right)
}

func putInt32LE(dst []byte, v int32) {
	u := uint32(v)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
	dst[2] = byte(u >> 16)
	dst[3] = byte(u >> 24)
}

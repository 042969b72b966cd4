package utils

import blake3 "lukechampine.com/blake3"

// ComputeBLAKE3 computes the BLAKE3-256 digest of the given bytes.
func ComputeBLAKE3(data []byte) [32]byte {
	return blake3.Sum256(data)
}

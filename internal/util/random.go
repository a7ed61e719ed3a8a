package util

import (
	"crypto/rand"
	"fmt"
)

// Alphanumeric is the alphabet used for authorization codes and access tokens
const Alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomAlphanumeric returns n characters drawn uniformly from Alphanumeric
// using crypto/rand. Bytes that would bias the distribution are discarded.
func RandomAlphanumeric(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	// Largest multiple of len(Alphanumeric) that fits in a byte
	const limit = 256 - 256%len(Alphanumeric)

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphanumeric[int(b)%len(Alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

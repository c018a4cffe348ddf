// Package randid provides random ID generation utilities.
package randid

import "math/rand/v2"

// Base36 is the lower-case alphanumeric alphabet.
const Base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate creates a random base36 ID of the specified length.
func Generate(length int) string {
	return FromAlphabet(Base36, length)
}

// FromAlphabet creates a random string of length drawn from alphabet.
// An empty alphabet yields an empty string.
func FromAlphabet(alphabet string, length int) string {
	if alphabet == "" || length <= 0 {
		return ""
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// Package idgen provides the short alphanumeric suffix generator used by
// the endpoint registry, grounded on hazyhaar-chrc/idgen's NanoID strategy.
package idgen

import "crypto/rand"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Suffix returns a random lower-case alphanumeric string of the given
// length, drawn from crypto/rand. Used for the 4-character endpoint-id
// suffix.
func Suffix(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("idgen: crypto/rand failed: " + err.Error())
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

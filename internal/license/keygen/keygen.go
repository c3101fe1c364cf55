// Package keygen produces license keys: four groups of eight uppercase
// alphanumerics joined by hyphens.
package keygen

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groups     = 4
	groupWidth = 8
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{8}(-[A-Z0-9]{8}){3}$`)

// Generate returns a fresh key drawn from crypto/rand.
func Generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	parts := make([]string, 0, groups)
	for g := 0; g < groups; g++ {
		var b strings.Builder
		b.Grow(groupWidth)
		for i := 0; i < groupWidth; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(alphabet[n.Int64()])
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "-"), nil
}

// Valid reports whether key has the generated shape.
func Valid(key string) bool {
	return keyPattern.MatchString(key)
}

// Canonical upper-cases and trims a key typed by a user.
func Canonical(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

var suppliedPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{7,63}$`)

// Acceptable reports whether an operator-supplied key may be stored. It is
// looser than Valid so keys imported from other systems keep their shape.
func Acceptable(key string) bool {
	return suppliedPattern.MatchString(key)
}

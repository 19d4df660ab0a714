package utils

import (
	"crypto/rand"
	"math/big"
)

const codeCharset = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random alphanumeric string, used for temporary passwords.
func GenerateCode(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(codeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = codeCharset[n.Int64()]
	}
	return string(b)
}

package keygen

import (
	"crypto/rand"
	"math/big"
)

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateToken returns a random alphanumeric string of the given length
// suitable for admin and worker API tokens.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	result := make([]byte, length)
	n := big.NewInt(int64(len(tokenCharset)))
	for i := range result {
		num, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		result[i] = tokenCharset[num.Int64()]
	}
	return string(result), nil
}

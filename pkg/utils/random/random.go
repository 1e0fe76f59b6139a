package random

import (
	"crypto/rand"
	"math/big"
)

const digits = "0123456789"

// Numeric returns a random digit string, used for join codes.
func Numeric(length int) string {
	if length <= 0 {
		return ""
	}
	max := big.NewInt(int64(len(digits)))
	runes := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			runes[i] = digits[0]
			continue
		}
		runes[i] = digits[n.Int64()]
	}
	return string(runes)
}

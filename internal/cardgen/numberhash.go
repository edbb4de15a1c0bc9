package cardgen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashNumber computes HMAC-SHA256 over a normalized card number. SQL storage
// indexes cards by this value.
func HashNumber(number string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(Normalize(number)))
	return hex.EncodeToString(h.Sum(nil))
}

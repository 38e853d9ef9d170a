package refdata

import (
	"crypto/sha256"
	"encoding/hex"
)

func HashBytesForTest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

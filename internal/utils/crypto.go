// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

func GenerateRandomString(length int, charset string) (string, error) {
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateRequestNumber returns a human readable request number such as
// AET-20250501-7K3QZP.
func GenerateRequestNumber(now time.Time) (string, error) {
	suffix, err := GenerateRandomString(6, "ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("AET-%s-%s", now.UTC().Format("20060102"), suffix), nil
}

package accesscode

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/skip2/go-qrcode"
)

const (
	Length   = 8
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate returns a random 8-character uppercase alphanumeric code.
func Generate() (string, error) {
	buf := make([]byte, Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("access code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Valid reports whether code has the shape produced by Generate.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// QRCode renders the payload a door reader scans for reservationID.
func QRCode(reservationID, code string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	payload := fmt.Sprintf("reservation:%s;code:%s", reservationID, code)
	return qrcode.Encode(payload, qrcode.Medium, size)
}

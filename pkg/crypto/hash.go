package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordMismatch = errors.New("password does not match")
	// bcrypt ignores everything past 72 bytes.
	ErrPasswordTooLong = errors.New("password longer than 72 bytes")
)

func HashPassword(pw string) ([]byte, error) {
	if len(pw) > 72 {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
}

func CheckPassword(hash []byte, pw string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(pw))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

package encrypt

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt.DefaultCost = 10
const bcryptCost = bcrypt.DefaultCost

// 房間密碼長度限制
const (
	minPasscodeLen = 4
	maxPasscodeLen = 64
)

var (
	ErrWeakPasscode     = errors.New("passcode must be between 4 and 64 characters")
	ErrPasscodeMismatch = errors.New("passcode does not match")
)

// HashPasscode hash a room passcode for storage
func HashPasscode(passcode string) (string, error) {
	if len(passcode) < minPasscodeLen || len(passcode) > maxPasscodeLen {
		return "", ErrWeakPasscode
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(passcode), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passcode: %w", err)
	}
	return string(hashed), nil
}

// CheckPasscode 驗證密碼是否匹配
func CheckPasscode(hashed, passcode string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(passcode)); err != nil {
		return ErrPasscodeMismatch
	}
	return nil
}

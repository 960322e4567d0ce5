package session

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// CodeLength is the length of generated game codes.
	CodeLength = 6

	// CodeChars are the characters game codes are drawn from.
	CodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxCodeAttempts = 64
)

// GenerateCode returns a random code. Uniqueness is the registry's job.
func GenerateCode() (string, error) {
	limit := big.NewInt(int64(len(CodeChars)))

	code := make([]byte, CodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating game code: %w", err)
		}
		code[i] = CodeChars[n.Int64()]
	}

	return string(code), nil
}

// NormalizeCode upper-cases and trims user input, then checks it is a
// well-formed code.
func NormalizeCode(s string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(s))

	if len(code) != CodeLength {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeChars, code[i]) < 0 {
			return "", ErrInvalidCode
		}
	}

	return code, nil
}

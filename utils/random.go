package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns 2n random hex characters in upper case.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateID returns prefix followed by an underscore and 2n random
// lower-case hex characters.
func GenerateID(prefix string, n int) (string, error) {
	code, err := GenerateCode(n)
	if err != nil {
		return "", err
	}
	return prefix + "_" + strings.ToLower(code), nil
}

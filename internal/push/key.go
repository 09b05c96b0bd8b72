package push

import (
	"encoding/base64"
	"fmt"
	"strings"
)

var urlAlphabet = strings.NewReplacer("-", "+", "_", "/")

// DecodeKey converts a base64url key, with or without padding, into raw
// bytes suitable for opening a subscription.
func DecodeKey(s string) ([]byte, error) {
	padding := strings.Repeat("=", (4-len(s)%4)%4)
	std := urlAlphabet.Replace(s + padding)
	raw, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return raw, nil
}

// EncodeKey is the inverse of DecodeKey and emits unpadded base64url.
func EncodeKey(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

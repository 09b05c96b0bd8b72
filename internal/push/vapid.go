package push

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingAuthorization is returned when a push carries no VAPID header.
	ErrMissingAuthorization = errors.New("missing vapid authorization")
	// ErrKeyMismatch is returned when the sender's key differs from the one
	// the subscription was opened with.
	ErrKeyMismatch = errors.New("application server key mismatch")
)

// VAPIDHeader is a parsed "vapid t=<jwt>, k=<key>" Authorization header.
type VAPIDHeader struct {
	Token string
	Key   string
}

// ParseVAPIDHeader extracts the token and key parameters.
func ParseVAPIDHeader(header string) (VAPIDHeader, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return VAPIDHeader{}, ErrMissingAuthorization
	}
	scheme, params, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "vapid") {
		return VAPIDHeader{}, fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
	var out VAPIDHeader
	for _, part := range strings.Split(params, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "t":
			out.Token = strings.TrimSpace(value)
		case "k":
			out.Key = strings.TrimSpace(value)
		}
	}
	if out.Token == "" || out.Key == "" {
		return VAPIDHeader{}, fmt.Errorf("vapid header missing t or k")
	}
	return out, nil
}

// VerifyVAPID checks that header was signed by serverKey for the origin of
// endpoint.
func VerifyVAPID(header string, serverKey []byte, endpoint string) error {
	parsed, err := ParseVAPIDHeader(header)
	if err != nil {
		return err
	}
	sent, err := DecodeKey(parsed.Key)
	if err != nil {
		return fmt.Errorf("vapid key: %w", err)
	}
	if !bytes.Equal(sent, serverKey) {
		return ErrKeyMismatch
	}
	pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), serverKey)
	if err != nil {
		return fmt.Errorf("vapid key: %w", err)
	}
	audience, err := origin(endpoint)
	if err != nil {
		return err
	}

	_, err = jwt.Parse(parsed.Token, func(*jwt.Token) (any, error) {
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("vapid token: %w", err)
	}
	return nil
}

func origin(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not absolute", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

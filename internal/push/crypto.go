package push

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrMalformedPayload reports a push body that is not valid aes128gcm.
var ErrMalformedPayload = errors.New("malformed push payload")

const (
	saltLen     = 16
	headerLen   = saltLen + 4 + 1
	gcmTagLen   = 16
	keyLen      = 16
	nonceLen    = 12
	authLen     = 16
	minRecord   = gcmTagLen + 2
	lastRecord  = 0x02
	innerRecord = 0x01
)

// Decrypt opens an RFC 8291 aes128gcm push message addressed to priv.
func Decrypt(body []byte, priv *ecdh.PrivateKey, authSecret []byte) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("decrypt: private key required")
	}
	if len(authSecret) != authLen {
		return nil, fmt.Errorf("decrypt: auth secret must be %d bytes", authLen)
	}
	if len(body) < headerLen {
		return nil, fmt.Errorf("%w: short header", ErrMalformedPayload)
	}

	salt := body[:saltLen]
	rs := int(binary.BigEndian.Uint32(body[saltLen : saltLen+4]))
	idLen := int(body[saltLen+4])
	if rs < minRecord {
		return nil, fmt.Errorf("%w: record size %d", ErrMalformedPayload, rs)
	}
	if len(body) < headerLen+idLen {
		return nil, fmt.Errorf("%w: short key id", ErrMalformedPayload)
	}
	senderKey := body[headerLen : headerLen+idLen]
	records := body[headerLen+idLen:]
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrMalformedPayload)
	}

	senderPub, err := ecdh.P256().NewPublicKey(senderKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %v", ErrMalformedPayload, err)
	}
	shared, err := priv.ECDH(senderPub)
	if err != nil {
		return nil, fmt.Errorf("decrypt: ecdh: %w", err)
	}

	info := make([]byte, 0, 14+65+65)
	info = append(info, "WebPush: info\x00"...)
	info = append(info, priv.PublicKey().Bytes()...)
	info = append(info, senderPub.Bytes()...)

	ikm, err := derive(shared, authSecret, info, 32)
	if err != nil {
		return nil, err
	}
	cek, err := derive(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), keyLen)
	if err != nil {
		return nil, err
	}
	baseNonce, err := derive(ikm, salt, []byte("Content-Encoding: nonce\x00"), nonceLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("decrypt: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("decrypt: gcm: %w", err)
	}

	var plain []byte
	for seq := uint64(0); len(records) > 0; seq++ {
		n := min(rs, len(records))
		chunk := records[:n]
		records = records[n:]

		opened, err := gcm.Open(nil, recordNonce(baseNonce, seq), chunk, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedPayload, seq, err)
		}
		data, delim, err := unpad(opened)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedPayload, seq, err)
		}
		last := len(records) == 0
		if last && delim != lastRecord || !last && delim != innerRecord {
			return nil, fmt.Errorf("%w: record %d: unexpected delimiter %#x", ErrMalformedPayload, seq, delim)
		}
		plain = append(plain, data...)
	}
	return plain, nil
}

func derive(secret, salt, info []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("decrypt: hkdf: %w", err)
	}
	return out, nil
}

// recordNonce xors the record sequence number into the low bytes of base.
func recordNonce(base []byte, seq uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], seq)
	for i := range ctr {
		nonce[len(nonce)-8+i] ^= ctr[i]
	}
	return nonce
}

// unpad strips trailing zero padding and returns the data and its delimiter.
func unpad(record []byte) ([]byte, byte, error) {
	i := len(record) - 1
	for i >= 0 && record[i] == 0 {
		i--
	}
	if i < 0 {
		return nil, 0, errors.New("missing padding delimiter")
	}
	return record[:i], record[i], nil
}

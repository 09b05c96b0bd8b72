package push

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKey_PaddedAndUnpaddedAgree(t *testing.T) {
	for _, raw := range [][]byte{
		{0xfb, 0xff},
		{0xfb, 0xef, 0xbe},
		{0x01, 0xfe, 0xff, 0x3e},
		[]byte("a 65 byte uncompressed point is the common case but any length works"),
	} {
		padded := base64.URLEncoding.EncodeToString(raw)
		unpadded := base64.RawURLEncoding.EncodeToString(raw)

		fromPadded, err := DecodeKey(padded)
		require.NoError(t, err, padded)
		fromUnpadded, err := DecodeKey(unpadded)
		require.NoError(t, err, unpadded)

		assert.Equal(t, raw, fromPadded)
		assert.Equal(t, fromPadded, fromUnpadded)
	}
}

func TestDecodeKey_TranslatesURLAlphabet(t *testing.T) {
	got, err := DecodeKey("-_-_")
	require.NoError(t, err)
	want, err := base64.StdEncoding.DecodeString("+/+/")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeKey_MalformedInputFails(t *testing.T) {
	_, err := DecodeKey("not*base64")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode key")
}

func TestEncodeKey_RoundTrips(t *testing.T) {
	raw := []byte{0, 1, 2, 250, 251, 252}
	got, err := DecodeKey(EncodeKey(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

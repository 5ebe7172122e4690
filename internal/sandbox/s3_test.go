package sandbox

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumFieldValueBase64EncodesHexDecodedChecksum(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	hexChecksum := hex.EncodeToString(raw)

	got, err := checksumFieldValue(hexChecksum)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), got)
}

// TestChecksumFieldValueUsesStandardAlphabet pins the encoding to the
// standard base64 alphabet using a digest whose encoding differs between
// the standard and URL-safe alphabets, so a regression to URL-safe
// encoding fails this test instead of passing it circularly.
func TestChecksumFieldValueUsesStandardAlphabet(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xbf}
	got, err := checksumFieldValue(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "+/+/", got)
}

func TestChecksumFieldValueRejectsNonHex(t *testing.T) {
	_, err := checksumFieldValue("not-hex")
	assert.Error(t, err)
}

func TestSignPostPolicyIsDeterministic(t *testing.T) {
	a := signPostPolicy("secret", "20260101", "us-east-1", "cG9saWN5")
	b := signPostPolicy("secret", "20260101", "us-east-1", "cG9saWN5")
	assert.Equal(t, a, b)

	c := signPostPolicy("other-secret", "20260101", "us-east-1", "cG9saWN5")
	assert.NotEqual(t, a, c)
}

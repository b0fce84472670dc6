package utils

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandUIDFormat(t *testing.T) {
	entropy := SystemEntropy()

	for i := 0; i < 50; i++ {
		uid := entropy.RandUID()
		assert.Len(t, uid, 16)
		for _, c := range uid {
			assert.Contains(t, "0123456789abcdef", string(c))
		}
	}
}

func TestEntropyDeterminism(t *testing.T) {
	a := NewEntropy(42)
	b := NewEntropy(42)

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.RandUID(), b.RandUID())
	}
	assert.Equal(t, a.Intn(1000), b.Intn(1000))
	assert.Equal(t, a.Float64(), b.Float64())
}

func TestPKCS7Padding(t *testing.T) {
	padded := PKCS7Padding([]byte("hello"), 16)
	assert.Len(t, padded, 16)
	assert.Equal(t, byte(11), padded[15])

	// Exact block length still gets a full padding block.
	padded = PKCS7Padding(make([]byte, 16), 16)
	assert.Len(t, padded, 32)
	assert.Equal(t, byte(16), padded[31])
}

func TestEncryptAESCBCDeterministic(t *testing.T) {
	key := "0123456789abcdef"

	a, err := EncryptAESCBC(`{"geetest":"captcha"}`, key)
	require.NoError(t, err)
	b, err := EncryptAESCBC(`{"geetest":"captcha"}`, key)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 0, len(a)%16)
}

func TestEncryptAESCBCRejectsBadKey(t *testing.T) {
	_, err := EncryptAESCBC("payload", "short")
	assert.Error(t, err)
}

func TestEncryptRSADeterministicUnderSeed(t *testing.T) {
	a, err := EncryptRSA("0123456789abcdef", NewEntropy(7))
	require.NoError(t, err)
	b, err := EncryptRSA("0123456789abcdef", NewEntropy(7))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	// 1024 bit modulus, hex encoded.
	assert.Len(t, a, 256)

	c, err := EncryptRSA("0123456789abcdef", NewEntropy(8))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGeneratePow(t *testing.T) {
	entropy := NewEntropy(1)

	result, err := GeneratePow(context.Background(), "lot123", "captcha456", "md5", "1", 8, "2026-01-01T00:00:00", entropy)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.PowMsg, "1|8|md5|2026-01-01T00:00:00|captcha456|lot123||"))
	assert.True(t, strings.HasPrefix(result.PowSign, "00"))

	sum := md5.Sum([]byte(result.PowMsg))
	assert.Equal(t, hex.EncodeToString(sum[:]), result.PowSign)
}

func TestGeneratePowZeroBits(t *testing.T) {
	result, err := GeneratePow(context.Background(), "lot", "id", "sha256", "1", 0, "now", NewEntropy(2))
	require.NoError(t, err)
	assert.NotEmpty(t, result.PowSign)
}

func TestGeneratePowRejectsUnknownHash(t *testing.T) {
	_, err := GeneratePow(context.Background(), "lot", "id", "crc32", "1", 4, "now", NewEntropy(3))
	assert.Error(t, err)
}

func TestGeneratePowHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// 64 leading zero bits is unreachable; the deadline must stop the
	// search instead.
	_, err := GeneratePow(ctx, "lot", "id", "sha256", "1", 64, "now", NewEntropy(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPowQualifiesRemainder(t *testing.T) {
	// 6 bits: one zero nibble then a nibble <= 3.
	assert.True(t, powQualifies("03ff", "0", 2, 1))
	assert.True(t, powQualifies("00ff", "0", 2, 1))
	assert.False(t, powQualifies("04ff", "0", 2, 1))
	assert.False(t, powQualifies("13ff", "0", 2, 1))
}

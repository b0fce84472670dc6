package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	crand "crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	mrand "math/rand"
	"sync"
)

// Geetest's fixed RSA-1024 public key. The random session key is
// wrapped with it and appended to the AES ciphertext.
const rsaModulusHex = "00C1E3934D1614465B33053E7F48EE4EC87B14B95EF88947713D25EECBFF7E74C7977D02DC1D9451F79DD5D1C10C29ACB6A9B4D6FB7D0A0279B6719E1772565F09AF627715919221AEF91899CAE08C0D686D748B20A3603BE2318CA6BC2B59706592A9219D0BF05C9F65023A21D2330807252AE0066D59CEEFA5F2748EA80BAB81"

const rsaExponent = 0x10001

// The slide track is encrypted against a static all-zero IV, same as
// the provider's own script.
var aesIV = []byte("0000000000000000")

// Entropy is the single randomness source for one solve. Seeding it
// makes pow nonces, session keys and timing fields reproducible, which
// keeps the encoder byte-exact under test.
type Entropy struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

func NewEntropy(seed int64) *Entropy {
	return &Entropy{rng: mrand.New(mrand.NewSource(seed))}
}

// SystemEntropy seeds from the OS. Used for real solves.
func SystemEntropy() *Entropy {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return NewEntropy(1)
	}
	return NewEntropy(int64(binary.BigEndian.Uint64(b[:])))
}

// Read makes Entropy usable as the randomness source for RSA padding.
func (e *Entropy) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range p {
		p[i] = byte(e.rng.Intn(256))
	}
	return len(p), nil
}

func (e *Entropy) Intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

func (e *Entropy) Float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// RandUID returns the 16 hex character session key format the
// provider's script produces: four blocks in [0x1000, 0xffff].
func (e *Entropy) RandUID() string {
	out := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		v := 0x1000 + e.Intn(0xF000)
		out = append(out, []byte(fmt.Sprintf("%04x", v))...)
	}
	return string(out)
}

// PKCS7Padding pads data to the given block size.
func PKCS7Padding(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

// EncryptAESCBC encrypts plaintext with AES-128-CBC under the 16 byte
// key string and the provider's static IV.
func EncryptAESCBC(plaintext string, key string) ([]byte, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	padded := PKCS7Padding([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, aesIV).CryptBlocks(out, padded)
	return out, nil
}

// EncryptRSA wraps message with the provider's public key, PKCS1v15.
// The entropy source drives the padding so output is reproducible
// under a fixed seed.
func EncryptRSA(message string, entropy *Entropy) (string, error) {
	n, ok := new(big.Int).SetString(rsaModulusHex, 16)
	if !ok {
		return "", fmt.Errorf("bad rsa modulus constant")
	}
	pub := &rsa.PublicKey{N: n, E: rsaExponent}
	enc, err := rsa.EncryptPKCS1v15(entropy, pub, []byte(message))
	if err != nil {
		return "", fmt.Errorf("rsa encrypt: %w", err)
	}
	return hex.EncodeToString(enc), nil
}

// PowResult is the nonce message and its qualifying hash.
type PowResult struct {
	PowMsg  string
	PowSign string
}

// GeneratePow brute-forces a nonce whose hash carries the requested
// number of leading zero bits. The search is unbounded in principle,
// so it watches the context; a hostile bits value cannot pin the
// attempt past its deadline.
func GeneratePow(ctx context.Context, lotNumber, captchaID, hashFunc, version string, bits int, datetime string, entropy *Entropy) (PowResult, error) {
	if hashFunc != "md5" && hashFunc != "sha1" && hashFunc != "sha256" {
		return PowResult{}, fmt.Errorf("unsupported pow hash function %q", hashFunc)
	}

	bitDivision := bits / 4
	bitRemainder := bits % 4
	prefix := ""
	for i := 0; i < bitDivision; i++ {
		prefix += "0"
	}

	base := fmt.Sprintf("%s|%d|%s|%s|%s|%s||", version, bits, hashFunc, datetime, captchaID, lotNumber)

	for iter := 0; ; iter++ {
		if iter%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return PowResult{}, fmt.Errorf("pow search aborted: %w", err)
			}
		}
		nonce := entropy.RandUID()
		msg := base + nonce

		var sum string
		switch hashFunc {
		case "md5":
			h := md5.Sum([]byte(msg))
			sum = hex.EncodeToString(h[:])
		case "sha1":
			h := sha1.Sum([]byte(msg))
			sum = hex.EncodeToString(h[:])
		case "sha256":
			h := sha256.Sum256([]byte(msg))
			sum = hex.EncodeToString(h[:])
		}

		if powQualifies(sum, prefix, bitRemainder, bitDivision) {
			return PowResult{PowMsg: msg, PowSign: sum}, nil
		}
	}
}

func powQualifies(hash, prefix string, bitRemainder, bitDivision int) bool {
	if len(hash) <= bitDivision || hash[:bitDivision] != prefix {
		return false
	}
	if bitRemainder == 0 {
		return true
	}
	var threshold byte
	switch bitRemainder {
	case 1:
		threshold = '7'
	case 2:
		threshold = '3'
	case 3:
		threshold = '1'
	default:
		return false
	}
	return hash[bitDivision] <= threshold
}

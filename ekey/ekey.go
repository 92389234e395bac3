// Package ekey unwraps the embedded key of QMC2 files into the raw content
// key used by the stream ciphers, and wraps raw keys back for verification.
package ekey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/devgianlu/go-qmc2/tea"
)

const (
	headerSize    = 8
	simpleKeySeed = 106
)

var (
	ErrParse     = errors.New("failed to parse ekey")
	ErrKeyDerive = errors.New("failed to derive real qmc2 key")
)

// SimpleMakeKey computes the fixed table mixed into every TEA key.
func SimpleMakeKey(seed byte, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		value := float64(seed) + float64(i)*0.1
		// saturates instead of wrapping
		out[i] = byte(min(100*math.Abs(math.Tan(value)), math.MaxUint8))
	}

	return out
}

// DeriveTEAKey interleaves the simple key table with the 8 bytes header of
// the ekey.
func DeriveTEAKey(header []byte) [tea.KeySize]byte {
	simpleKey := SimpleMakeKey(simpleKeySeed, headerSize)

	var key [tea.KeySize]byte
	for i := 0; i < headerSize; i++ {
		key[2*i] = simpleKey[i]
		key[2*i+1] = header[i]
	}

	return key
}

func cleanEKey(ekey string) string {
	return strings.TrimRight(ekey, "\x00 \t\r\n")
}

// Parse decodes an ekey into the raw content key: the 8 bytes header
// followed by the unwrapped body.
func Parse(ekey string) ([]byte, error) {
	ekey = cleanEKey(ekey)
	if strings.HasPrefix(ekey, encV2Prefix) {
		return parseV2(ekey[len(encV2Prefix):])
	}

	return parseV1(ekey)
}

func parseV1(ekey string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(ekey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	} else if len(decoded) < headerSize {
		return nil, fmt.Errorf("%w: decoded size %d is too small", ErrParse, len(decoded))
	}

	teaKey := DeriveTEAKey(decoded[:headerSize])
	body, err := tea.OiSymmetryDecrypt2(decoded[headerSize:], &teaKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerive, err)
	}

	key := make([]byte, 0, headerSize+len(body))
	key = append(key, decoded[:headerSize]...)
	return append(key, body...), nil
}

// Generate wraps a raw content key into an ekey. It is the inverse of Parse.
func Generate(key []byte) (string, error) {
	if len(key) < headerSize {
		return "", fmt.Errorf("%w: key size %d is too small", ErrParse, len(key))
	}

	teaKey := DeriveTEAKey(key[:headerSize])
	body, err := tea.OiSymmetryEncrypt2(key[headerSize:], &teaKey, rand.Reader)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, key[:headerSize]...)
	out = append(out, body...)
	return base64.StdEncoding.EncodeToString(out), nil
}

package ekey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/devgianlu/go-qmc2/tea"
)

// encV2Prefix is "QQMusic EncV2,Key:" in base64.
const encV2Prefix = "UVFNdXNpYyBFbmNWMixLZXk6"

var (
	encV2Key1 = [tea.KeySize]byte{0x33, 0x38, 0x36, 0x5A, 0x4A, 0x59, 0x21, 0x40, 0x23, 0x2A, 0x24, 0x25, 0x5E, 0x26, 0x29, 0x28}
	encV2Key2 = [tea.KeySize]byte{0x2A, 0x2A, 0x23, 0x21, 0x28, 0x23, 0x24, 0x25, 0x26, 0x5E, 0x61, 0x31, 0x63, 0x5A, 0x2C, 0x54}
)

// parseV2 unwraps the two fixed key TEA layers of an EncV2 ekey, the result
// is a regular ekey.
func parseV2(ekey string) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(ekey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid v2 payload: %w", ErrParse, err)
	}

	inner, err := tea.OiSymmetryDecrypt2(wrapped, &encV2Key1)
	if err != nil {
		return nil, fmt.Errorf("%w: v2 first layer: %w", ErrKeyDerive, err)
	}

	inner, err = tea.OiSymmetryDecrypt2(inner, &encV2Key2)
	if err != nil {
		return nil, fmt.Errorf("%w: v2 second layer: %w", ErrKeyDerive, err)
	}

	return parseV1(cleanEKey(string(inner)))
}

// GenerateV2 wraps a raw content key into an EncV2 ekey.
func GenerateV2(key []byte) (string, error) {
	inner, err := Generate(key)
	if err != nil {
		return "", err
	}

	layer, err := tea.OiSymmetryEncrypt2([]byte(inner), &encV2Key2, rand.Reader)
	if err != nil {
		return "", err
	}

	layer, err = tea.OiSymmetryEncrypt2(layer, &encV2Key1, rand.Reader)
	if err != nil {
		return "", err
	}

	return encV2Prefix + base64.StdEncoding.EncodeToString(layer), nil
}

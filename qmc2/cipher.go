// Package qmc2 implements the QMC2 stream ciphers. Every cipher is a pure
// function of the offset and the input bytes, so any range of a file can be
// decrypted without processing what precedes it.
package qmc2

import (
	"errors"

	"github.com/devgianlu/go-qmc2/ekey"
)

// RecommendedBlockSize is 2.5 MiB, aligned to the RC4 segment size.
const RecommendedBlockSize = 1024 * 1024 * 5 / 2

// rc4KeyThreshold is the longest key still handled by the map cipher.
const rc4KeyThreshold = 300

var ErrEmptyKey = errors.New("qmc2: empty key")

// Cipher decrypts an arbitrary range of a QMC2 stream in place. Decrypt does
// not modify the cipher and may be called concurrently for disjoint buffers.
type Cipher interface {
	RecommendedBlockSize() int
	Decrypt(offset uint64, buf []byte)
}

// NewCipher unwraps ekey and creates the matching cipher.
func NewCipher(ekeyText string) (Cipher, error) {
	key, err := ekey.Parse(ekeyText)
	if err != nil {
		return nil, err
	}

	return NewCipherFromKey(key)
}

// NewCipherFromKey creates a cipher from a raw content key: RC4 for keys
// longer than 300 bytes and the legacy map cipher otherwise.
func NewCipherFromKey(key []byte) (Cipher, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	if len(key) > rc4KeyThreshold {
		return newRC4Cipher(key), nil
	}

	return newMapCipher(key), nil
}

// Package tea implements tc_tea, the TEA variant used to wrap QMC2 content
// keys. It runs 16 TEA cycles instead of 32 and chains blocks with a tweaked
// CBC mode whose plaintext carries random padding, a salt and a zero trailer.
package tea

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	xtea "golang.org/x/crypto/tea"
)

const (
	BlockSize = xtea.BlockSize
	KeySize   = xtea.KeySize

	// 32 Feistel rounds, that is 16 TEA cycles.
	feistelRounds = 32

	saltLen     = 2
	zeroLen     = 7
	MinInputLen = 1 + saltLen + zeroLen
)

var ErrZeroVerification = errors.New("tc_tea: verification of zero bytes failed")

type InputSizeError struct {
	Len int
	Min int
}

func (e *InputSizeError) Error() string {
	return fmt.Sprintf("tc_tea: input size %d should have %d bytes and be multiple of 8", e.Len, e.Min)
}

func newBlock(key *[KeySize]byte) cipher.Block {
	block, err := xtea.NewCipherWithRounds(key[:], feistelRounds)
	if err != nil {
		// key size and round count are both constant
		panic(fmt.Sprintf("tc_tea: failed creating block cipher: %v", err))
	}

	return block
}

func xorBlock(dst, src []byte) {
	for i := 0; i < BlockSize; i++ {
		dst[i] ^= src[i]
	}
}

// OiSymmetryDecrypt2 decrypts input and returns the body found between the
// header (pad length, padding, salt) and the zero trailer.
func OiSymmetryDecrypt2(input []byte, key *[KeySize]byte) ([]byte, error) {
	size := len(input)
	if size < MinInputLen || size%BlockSize != 0 {
		return nil, &InputSizeError{Len: size, Min: MinInputLen}
	}

	block := newBlock(key)
	out := make([]byte, size)
	copy(out, input)

	// every block is chained against the previous decrypted block
	block.Decrypt(out[0:BlockSize], out[0:BlockSize])
	for i := BlockSize; i < size; i += BlockSize {
		xorBlock(out[i:i+BlockSize], out[i-BlockSize:i])
		block.Decrypt(out[i:i+BlockSize], out[i:i+BlockSize])
	}

	// then against the previous ciphertext block, the first one has a zero iv
	for i := BlockSize; i < size; i += BlockSize {
		xorBlock(out[i:i+BlockSize], input[i-BlockSize:i])
	}

	padSize := int(out[0] & 0b111)
	start, end := 1+padSize+saltLen, size-zeroLen

	// not constant time, the key is not a secret worth protecting here
	for _, b := range out[end:] {
		if b != 0 {
			return nil, ErrZeroVerification
		}
	}

	// the header claims more padding than the input can hold
	if start > end {
		return nil, &InputSizeError{Len: size, Min: start + zeroLen}
	}

	return out[start:end], nil
}

// OiSymmetryEncrypt2 is the inverse of OiSymmetryDecrypt2. Padding and salt
// bytes are read from rnd.
func OiSymmetryEncrypt2(body []byte, key *[KeySize]byte, rnd io.Reader) ([]byte, error) {
	padSize := (BlockSize - (len(body)+MinInputLen)%BlockSize) % BlockSize
	prefixLen := 1 + padSize + saltLen

	plain := make([]byte, prefixLen+len(body)+zeroLen)
	if _, err := io.ReadFull(rnd, plain[:prefixLen]); err != nil {
		return nil, fmt.Errorf("tc_tea: failed reading random padding: %w", err)
	}

	plain[0] = (plain[0] &^ 0b111) | byte(padSize)
	copy(plain[prefixLen:], body)

	block := newBlock(key)
	out := make([]byte, len(plain))

	var prevPlain [BlockSize]byte
	for i := 0; i < len(plain); i += BlockSize {
		var cur [BlockSize]byte
		copy(cur[:], plain[i:i+BlockSize])
		if i > 0 {
			xorBlock(cur[:], out[i-BlockSize:i])
		}

		block.Encrypt(out[i:i+BlockSize], cur[:])
		xorBlock(out[i:i+BlockSize], prevPlain[:])
		prevPlain = cur
	}

	return out, nil
}

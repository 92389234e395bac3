package qmc2

import (
	"bytes"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/devgianlu/go-qmc2/ekey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/exp/rand"
)

func patternKey(size int, mul, add int) []byte {
	key := make([]byte, size)
	for i := range key {
		key[i] = byte(i*mul + add)
	}
	return key
}

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestRC4KeyHash(t *testing.T) {
	c := newRC4Cipher([]byte{1, 99})
	assert.Equal(t, uint32(1), c.hash)

	c = newRC4Cipher(bytes.Repeat([]byte{0xff}, 16))
	assert.Equal(t, uint32(0xfc05fc01), c.hash)

	c = newRC4Cipher(patternKey(512, 37, 11))
	assert.Equal(t, uint32(0xd28cd380), c.hash)
}

func TestRC4KeySchedulingIsPermutationOfIndexes(t *testing.T) {
	key := patternKey(301, 37, 11)
	c := newRC4Cipher(key)

	require.Len(t, c.s, len(key))

	// values are byte(i), so each one appears once or twice for n in (256, 512]
	counts := map[byte]int{}
	for _, b := range c.s {
		counts[b]++
	}
	for i := 0; i < len(key); i++ {
		assert.Positive(t, counts[byte(i)])
	}
}

func TestRC4Decrypt(t *testing.T) {
	c := newRC4Cipher(patternKey(512, 37, 11))

	tests := []struct {
		offset uint64
		want   string
	}{
		{0, "ede445e5eec06cf9603310615c44451f"},
		{0x78, "55016436b2f2defff881f48edec537e0"},
		{0x1400*3 + 5, "f74fa873d68262b414df8fc4ad17aeb7"},
	}

	for _, tt := range tests {
		buf := make([]byte, 16)
		c.Decrypt(tt.offset, buf)
		assert.Equal(t, mustHex(t, tt.want), buf, "offset %#x", tt.offset)
	}
}

func TestRC4DecryptZeroSeed(t *testing.T) {
	key := patternKey(400, 37, 11)
	key[5] = 0

	c := newRC4Cipher(key)
	assert.Equal(t, uint32(0x3a8b2ae0), c.hash)

	buf := make([]byte, 8)
	c.Decrypt(0, buf)
	assert.Equal(t, mustHex(t, "f5f1c0ab7436e9f3"), buf)
}

func TestMapDecrypt(t *testing.T) {
	c := newMapCipher(patternKey(256, 13, 7))

	tests := []struct {
		offset uint64
		want   string
	}{
		{0, "775d429abf1440db"},
		{0x7FFF, "5d5d429abf1440db"},
		{0x8000, "5d429abf1440db77"},
		{100000, "92bf1c42d377d743"},
	}

	for _, tt := range tests {
		buf := make([]byte, 8)
		c.Decrypt(tt.offset, buf)
		assert.Equal(t, mustHex(t, tt.want), buf, "offset %#x", tt.offset)
	}
}

func TestMapDecryptPeriod(t *testing.T) {
	c := newMapCipher(patternKey(128, 29, 3))

	for _, offset := range []uint64{1, 0x100, 0x7FFE, 0x12345} {
		a, b := make([]byte, 1), make([]byte, 1)
		c.Decrypt(offset, a)
		c.Decrypt(offset+mapPeriod, b)
		assert.Equal(t, a, b, "offset %#x", offset)
	}
}

func testSliceConsistency(t *testing.T, c Cipher) {
	const size = otherSegmentSize*4 + 0x333

	plain := make([]byte, size)
	r := rand.New(rand.NewSource(42))
	_, _ = r.Read(plain)

	// decrypt everything at once
	full := bytes.Clone(plain)
	c.Decrypt(0, full)
	require.NotEqual(t, plain, full)

	// then random ranges, in random order
	for i := 0; i < 200; i++ {
		start := r.Intn(size)
		end := start + r.Intn(size-start+1)

		part := bytes.Clone(plain[start:end])
		c.Decrypt(uint64(start), part)
		require.Equal(t, full[start:end], part, "range [%d, %d)", start, end)
	}

	// and a read of fixed size blocks crossing every boundary
	for _, block := range []int{1, 7, 0x80, 0x100, otherSegmentSize - 1, otherSegmentSize + 1} {
		out := bytes.Clone(plain)
		for off := 0; off < size; off += block {
			end := min(off+block, size)
			c.Decrypt(uint64(off), out[off:end])
		}
		require.Equal(t, full, out, "block size %d", block)
	}
}

func TestRC4SliceConsistency(t *testing.T) {
	testSliceConsistency(t, newRC4Cipher(patternKey(512, 37, 11)))
}

func TestRC4ShortKeyHighSegment(t *testing.T) {
	key := patternKey(301, 37, 11)
	c := newRC4Cipher(key)

	// segment 301 picks its seed past the end of a 301 bytes key
	offset := uint64(301 * otherSegmentSize)
	full := make([]byte, otherSegmentSize*2)
	require.NotPanics(t, func() { c.Decrypt(offset, full) })

	split := make([]byte, len(full))
	c.Decrypt(offset, split[:100])
	c.Decrypt(offset+100, split[100:])
	assert.Equal(t, full, split)

	// the seed wraps to the first key byte, like segment 0
	seed := key[0]
	discard := int(c.segmentKey(301, seed)&segmentIdMask)
	expected := make([]byte, 16)
	s := bytes.Clone(c.s)
	j, k := 0, 0
	for i := 0; i < discard+len(expected); i++ {
		j = (j + 1) % c.n
		k = (int(s[j]) + k) % c.n
		s[j], s[k] = s[k], s[j]
		if i >= discard {
			expected[i-discard] = s[(int(s[j])+int(s[k]))%c.n]
		}
	}
	assert.Equal(t, expected, full[:16])
}

func TestMapSliceConsistency(t *testing.T) {
	testSliceConsistency(t, newMapCipher(patternKey(256, 13, 7)))
}

func TestDecryptIsInvolution(t *testing.T) {
	for _, c := range []Cipher{newRC4Cipher(patternKey(333, 3, 1)), newMapCipher(patternKey(64, 5, 9))} {
		plain := []byte("some audio bytes that are not really audio at all, but long enough")
		buf := bytes.Clone(plain)

		c.Decrypt(0x7f, buf)
		c.Decrypt(0x7f, buf)
		assert.Equal(t, plain, buf)
	}
}

func TestConcurrentDecrypt(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newRC4Cipher(patternKey(700, 17, 5))

	const size = otherSegmentSize * 16
	full := make([]byte, size)
	c.Decrypt(0, full)

	const workers = 8
	results := make([][]byte, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			chunk := size / workers
			buf := make([]byte, chunk)
			c.Decrypt(uint64(idx*chunk), buf)
			results[idx] = buf
		}(w)
	}
	wg.Wait()

	assert.Equal(t, full, bytes.Join(results, nil))
}

func TestNewCipherFromKey(t *testing.T) {
	c, err := NewCipherFromKey(patternKey(300, 1, 1))
	require.NoError(t, err)
	assert.IsType(t, &mapCipher{}, c)

	c, err = NewCipherFromKey(patternKey(301, 1, 1))
	require.NoError(t, err)
	assert.IsType(t, &rc4Cipher{}, c)
	assert.Equal(t, RecommendedBlockSize, c.RecommendedBlockSize())
	assert.Zero(t, c.RecommendedBlockSize()%otherSegmentSize)

	_, err = NewCipherFromKey(nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestNewCipher(t *testing.T) {
	for _, size := range []int{8, 128, 300, 301, 512} {
		key := patternKey(size, 31, 17)

		ekeyText, err := ekey.Generate(key)
		require.NoError(t, err)

		c, err := NewCipher(ekeyText)
		require.NoError(t, err)

		expected, err := NewCipherFromKey(key)
		require.NoError(t, err)

		a, b := make([]byte, 0x2000), make([]byte, 0x2000)
		c.Decrypt(0x50, a)
		expected.Decrypt(0x50, b)
		assert.Equal(t, b, a, "key size %d", size)
	}

	_, err := NewCipher("not an ekey")
	assert.ErrorIs(t, err, ekey.ErrParse)
}

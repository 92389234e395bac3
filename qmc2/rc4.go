package qmc2

import (
	"bytes"
	"math"
)

const (
	firstSegmentSize = 0x80
	otherSegmentSize = 0x1400
)

// the segment id wraps every 512 segments when picking the seed byte
const segmentIdMask = 0x1FF

var _ [0]struct{} = [RecommendedBlockSize % otherSegmentSize]struct{}{}

// rc4Cipher is the segmented RC4 cipher. The first 0x80 bytes are decrypted
// with a direct key lookup, every following 0x1400 bytes segment restarts
// the keystream from s after discarding a key dependent amount of bytes.
type rc4Cipher struct {
	s    []byte
	n    int
	hash uint32
	key  []byte
}

func newRC4Cipher(key []byte) *rc4Cipher {
	n := len(key)

	// key scheduling over a table as big as the key
	s := make([]byte, n)
	for i := range s {
		s[i] = byte(i)
	}

	j := 0
	for i := 0; i < n; i++ {
		j = (int(s[i]) + j + int(key[i%n])) % n
		s[i], s[j] = s[j], s[i]
	}

	return &rc4Cipher{s: s, n: n, hash: keyHash(key), key: bytes.Clone(key)}
}

// keyHash multiplies the non-zero key bytes, stopping as soon as the product
// overflows to zero or stops growing.
func keyHash(key []byte) uint32 {
	hash := uint32(1)
	for _, b := range key {
		if b == 0 {
			continue
		}

		next := hash * uint32(b)
		if next == 0 || next <= hash {
			break
		}

		hash = next
	}

	return hash
}

func (c *rc4Cipher) RecommendedBlockSize() int {
	return RecommendedBlockSize
}

// segmentKey must stay in float64 to match existing files. A zero seed
// divides by zero, the infinity saturates.
func (c *rc4Cipher) segmentKey(id uint64, seed byte) uint64 {
	divisor := float64((id + 1) * uint64(seed))
	key := float64(c.hash) / divisor * 100.0
	if key >= math.MaxUint64 {
		return math.MaxUint64
	}

	return uint64(key)
}

func (c *rc4Cipher) decryptFirstSegment(offset uint64, buf []byte) {
	n := uint64(c.n)
	for i := range buf {
		seed := c.key[offset%n]
		idx := c.segmentKey(offset, seed) % n
		buf[i] ^= c.key[idx]
		offset++
	}
}

func (c *rc4Cipher) decryptOtherSegment(offset uint64, buf []byte) {
	segId := offset / otherSegmentSize
	// keys shorter than 512 bytes wrap around
	seed := c.key[(segId&segmentIdMask)%uint64(c.n)]

	discard := int(c.segmentKey(segId, seed) & segmentIdMask)
	discard += int(offset % otherSegmentSize)

	n := c.n
	s := bytes.Clone(c.s)
	j, k := 0, 0

	next := func() byte {
		j = (j + 1) % n
		k = (int(s[j]) + k) % n
		s[j], s[k] = s[k], s[j]
		return s[(int(s[j])+int(s[k]))%n]
	}

	for i := 0; i < discard; i++ {
		next()
	}

	for i := range buf {
		buf[i] ^= next()
	}
}

func (c *rc4Cipher) Decrypt(offset uint64, buf []byte) {
	if offset < firstSegmentSize {
		size := min(len(buf), int(firstSegmentSize-offset))
		c.decryptFirstSegment(offset, buf[:size])
		buf = buf[size:]
		offset += uint64(size)
	}

	// finish the segment the offset falls into
	if align := offset % otherSegmentSize; align != 0 && len(buf) > 0 {
		size := min(len(buf), int(otherSegmentSize-align))
		c.decryptOtherSegment(offset, buf[:size])
		buf = buf[size:]
		offset += uint64(size)
	}

	for len(buf) > 0 {
		size := min(len(buf), otherSegmentSize)
		c.decryptOtherSegment(offset, buf[:size])
		buf = buf[size:]
		offset += uint64(size)
	}
}

package qmc2

// mapPeriod is where offsets wrap, offsets up to and including it are used
// as is.
const mapPeriod = 0x7FFF

// mapCipher is the legacy cipher used for keys up to 300 bytes. Every byte is
// XORed with a mask that only depends on the offset modulo 0x7FFF, all masks
// are computed once.
type mapCipher struct {
	mask [mapPeriod + 1]byte
}

func newMapCipher(key []byte) *mapCipher {
	c := &mapCipher{}

	n := len(key)
	for i := range c.mask {
		idx := (i*i + 71214) % n
		value := key[idx]
		rotate := ((idx & 0b111) + 4) % 8
		c.mask[i] = value<<rotate | value>>rotate
	}

	return c
}

func (c *mapCipher) RecommendedBlockSize() int {
	return RecommendedBlockSize
}

func (c *mapCipher) Decrypt(offset uint64, buf []byte) {
	for i := range buf {
		idx := offset
		if idx > mapPeriod {
			idx %= mapPeriod
		}

		buf[i] ^= c.mask[idx]
		offset++
	}
}

// Package detection locates the encrypted key (ekey) in the trailing bytes of
// a QMC2 file.
//
// Two layouts exist. Files ending with "QTag" (v2) store a big-endian
// metadata size right before the magic, the metadata being the ekey, the song
// id and one more field separated by commas. Older files (v1) end with a
// little-endian ekey size instead.
package detection

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
)

const (
	// MagicQTag is "QTag" read as a little-endian integer.
	MagicQTag uint32 = 0x67615451
	// MagicSTag is "STag" read as a little-endian integer. Such files only
	// carry metadata, the key has to be obtained elsewhere.
	MagicSTag uint32 = 0x67615453

	maxV1KeySize = 0x300
)

// RecommendedDetectionSize is the minimum trailing window callers should
// pass to Detect.
const RecommendedDetectionSize = 0x40

// Detection describes where the ekey is. Positions are relative to the start
// of the buffer given to Detect and are negative when the ekey begins before
// it: the caller must detect again with a larger window.
type Detection struct {
	EOFPosition  int64
	EKeyPosition int64
	EKeyLen      int
	SongID       string
}

func findComma(buf []byte, start, end int) int {
	if start >= end {
		return -1
	}

	idx := bytes.IndexByte(buf[start:end], ',')
	if idx < 0 {
		return -1
	}

	return start + idx
}

func detectV1(buf []byte, keySize uint32) Detection {
	endOfMeta := int64(len(buf) - 4)
	ekeyLoc := endOfMeta - int64(keySize)

	return Detection{
		EOFPosition:  ekeyLoc,
		EKeyPosition: ekeyLoc,
		EKeyLen:      int(keySize),
	}
}

func detectV2(buf []byte) (Detection, error) {
	endOfMeta := len(buf) - 8
	metaSize := binary.BigEndian.Uint32(buf[endOfMeta:])

	ekeyLoc := int64(endOfMeta) - int64(metaSize)
	searchStart := 0
	if ekeyLoc > 0 {
		searchStart = int(ekeyLoc)
	}

	ekeyEnd := findComma(buf, searchStart, endOfMeta)
	if ekeyEnd < 0 {
		return Detection{}, ErrCouldNotIdentifyEndOfEKey
	}

	// the song id follows the ekey, failing to read it is not fatal
	var songId string
	songIdLoc := ekeyEnd + 1
	if songIdEnd := findComma(buf, songIdLoc, endOfMeta); songIdEnd >= 0 {
		if raw := buf[songIdLoc:songIdEnd]; utf8.Valid(raw) {
			songId = string(raw)
		}
	}

	return Detection{
		EOFPosition:  ekeyLoc,
		EKeyPosition: ekeyLoc,
		EKeyLen:      int(int64(ekeyEnd) - ekeyLoc),
		SongID:       songId,
	}, nil
}

// Detect parses the trailing bytes of a file. buf should be at least
// RecommendedDetectionSize bytes long, shorter buffers work as long as they
// hold at least 8 bytes.
func Detect(buf []byte) (Detection, error) {
	if len(buf) < 8 {
		return Detection{}, ErrBufferTooSmall
	}

	magic := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	if magic == MagicQTag {
		return detectV2(buf)
	}

	// v1 stores the key size in place of the magic
	if magic > 0 && magic <= maxV1KeySize {
		return detectV1(buf, magic), nil
	}

	if magic == 0 {
		return Detection{}, ErrZerosAtEOF
	}

	return Detection{}, &UnknownMagicError{Magic: magic}
}

package detection

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrBufferTooSmall            = errors.New("provided buffer is too small to find anything")
	ErrCouldNotIdentifyEndOfEKey = errors.New("could not identify the end of ekey")
	ErrSongIDOverflow            = errors.New("song id too long")
	ErrZerosAtEOF                = errors.New("magic field is zero")
)

// UnknownMagicError is returned when the trailing 4 bytes are neither a known
// magic nor a plausible key size.
type UnknownMagicError struct {
	Magic uint32
}

func (e *UnknownMagicError) Error() string {
	return fmt.Sprintf("unknown magic (big-endian) %#08x", bits.ReverseBytes32(e.Magic))
}

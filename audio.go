package go_qmc2

import "io"

// SizedReadAtSeeker is a decrypted audio stream with a known length.
type SizedReadAtSeeker interface {
	io.ReaderAt
	io.ReadSeeker

	Size() int64
}

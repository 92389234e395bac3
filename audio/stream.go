package audio

import (
	"io"

	"github.com/devgianlu/go-qmc2/qmc2"
)

// StreamDecryptor decrypts a sequential stream, for inputs that cannot be
// read at random offsets. The ekey has to be known beforehand since it is
// stored at the end of the file.
type StreamDecryptor struct {
	reader io.Reader
	cipher qmc2.Cipher

	offset uint64
}

func NewStreamDecryptor(r io.Reader, c qmc2.Cipher) *StreamDecryptor {
	return &StreamDecryptor{reader: r, cipher: c}
}

func (s *StreamDecryptor) Read(p []byte) (n int, err error) {
	n, err = s.reader.Read(p)
	if n > 0 {
		s.cipher.Decrypt(s.offset, p[:n])
		s.offset += uint64(n)
	}
	return n, err
}

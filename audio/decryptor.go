package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	qmc2lib "github.com/devgianlu/go-qmc2"
	"github.com/devgianlu/go-qmc2/detection"
	"github.com/devgianlu/go-qmc2/qmc2"
)

// maxDetectionWindow bounds how much of the file tail is read to find the
// ekey, metadata sizes past it are considered corrupted.
const maxDetectionWindow = 1024 * 1024

var (
	ErrNoEmbeddedKey  = errors.New("file does not embed a key")
	ErrKeyOutOfBounds = errors.New("ekey position is out of the file bounds")
)

var _ qmc2lib.SizedReadAtSeeker = (*Decryptor)(nil)

type Decryptor struct {
	reader io.ReaderAt
	cipher qmc2.Cipher
	size   int64
	songId string

	pos     int64
	posLock sync.Mutex
}

// NewDecryptor decrypts the first size bytes of r with c.
func NewDecryptor(r io.ReaderAt, size int64, c qmc2.Cipher) *Decryptor {
	return &Decryptor{reader: r, cipher: c, size: size}
}

// NewQmc2Decryptor locates the ekey at the end of r, which is size bytes
// long, and returns a decryptor for the audio data that precedes it.
func NewQmc2Decryptor(log qmc2lib.Logger, r io.ReaderAt, size int64) (*Decryptor, error) {
	det, windowStart, window, err := locateKey(r, size)
	if err != nil {
		return nil, err
	}

	ekeyText := window[det.EKeyPosition : det.EKeyPosition+int64(det.EKeyLen)]
	log.WithField("song_id", det.SongID).
		Debugf("found ekey at %d (%d bytes): %s", windowStart+det.EKeyPosition, det.EKeyLen, qmc2lib.ObfuscateEKey(string(ekeyText)))

	c, err := qmc2.NewCipher(string(ekeyText))
	if err != nil {
		return nil, fmt.Errorf("failed creating cipher: %w", err)
	}

	d := NewDecryptor(r, windowStart+det.EOFPosition, c)
	d.songId = det.SongID
	return d, nil
}

// locateKey runs detection over a growing window at the end of the file until
// the ekey is inside it.
func locateKey(r io.ReaderAt, size int64) (detection.Detection, int64, []byte, error) {
	windowSize := int64(detection.RecommendedDetectionSize)
	for {
		windowSize = min(windowSize, size)
		if windowSize > maxDetectionWindow {
			return detection.Detection{}, 0, nil, ErrKeyOutOfBounds
		}

		start := size - windowSize
		window := make([]byte, windowSize)
		if _, err := io.ReadFull(io.NewSectionReader(r, start, windowSize), window); err != nil {
			return detection.Detection{}, 0, nil, fmt.Errorf("failed reading file tail at %d: %w", start, err)
		}

		det, err := detection.Detect(window)
		if errors.Is(err, detection.ErrCouldNotIdentifyEndOfEKey) && start > 0 {
			// the end of the ekey may be before the window as well
			windowSize *= 2
			continue
		} else if err != nil {
			var magicErr *detection.UnknownMagicError
			if errors.As(err, &magicErr) && magicErr.Magic == detection.MagicSTag {
				return detection.Detection{}, 0, nil, ErrNoEmbeddedKey
			}

			return detection.Detection{}, 0, nil, fmt.Errorf("failed detecting ekey: %w", err)
		}

		if det.EKeyPosition >= 0 {
			return det, start, window, nil
		} else if start == 0 {
			return detection.Detection{}, 0, nil, ErrKeyOutOfBounds
		}

		windowSize -= det.EKeyPosition
	}
}

// SongID is the song id found next to the ekey, it may be empty.
func (d *Decryptor) SongID() string {
	return d.songId
}

func (d *Decryptor) Size() int64 {
	return d.size
}

func (d *Decryptor) ReadAt(p []byte, pos int64) (n int, err error) {
	if pos < 0 {
		return 0, fmt.Errorf("invalid read position: %d", pos)
	} else if pos >= d.size {
		return 0, io.EOF
	}

	// never read past the audio data into the metadata
	truncated := false
	if remaining := d.size - pos; int64(len(p)) > remaining {
		p = p[:remaining]
		truncated = true
	}

	n, err = d.reader.ReadAt(p, pos)
	if n > 0 {
		d.cipher.Decrypt(uint64(pos), p[:n])
	}

	if err == nil && truncated {
		err = io.EOF
	}
	return n, err
}

func (d *Decryptor) Read(p []byte) (n int, err error) {
	d.posLock.Lock()
	defer d.posLock.Unlock()

	n, err = d.ReadAt(p, d.pos)
	d.pos += int64(n)
	return n, err
}

func (d *Decryptor) Seek(offset int64, whence int) (int64, error) {
	d.posLock.Lock()
	defer d.posLock.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = d.pos + offset
	case io.SeekEnd:
		abs = d.size + offset
	default:
		return 0, fmt.Errorf("invalid seek whence: %d", whence)
	}

	if abs < 0 {
		return 0, fmt.Errorf("invalid seek position: %d", abs)
	}

	d.pos = abs
	return abs, nil
}

// RecommendedBlockSize is the read size that performs best with the
// underlying cipher.
func (d *Decryptor) RecommendedBlockSize() int {
	return d.cipher.RecommendedBlockSize()
}

func (d *Decryptor) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

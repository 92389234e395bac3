package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// sniffSize is enough bytes for every signature below.
const sniffSize = 16

var ErrUnknownAudioFormat = errors.New("unknown audio format")

type audioSignature struct {
	offset int
	magic  []byte
	ext    string
}

var audioSignatures = []audioSignature{
	{0, []byte("fLaC"), ".flac"},
	{0, []byte("OggS"), ".ogg"},
	{0, []byte("ID3"), ".mp3"},
	{0, []byte("MAC "), ".ape"},
	{0, []byte{0x30, 0x26, 0xb2, 0x75, 0x8e, 0x66, 0xcf, 0x11}, ".wma"},
	{4, []byte("ftyp"), ".m4a"},
	{8, []byte("WAVE"), ".wav"},
}

// SniffExtension guesses the file extension of decrypted audio from its
// first bytes.
func SniffExtension(header []byte) (string, bool) {
	for _, sig := range audioSignatures {
		if len(header) >= sig.offset+len(sig.magic) && bytes.Equal(header[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return sig.ext, true
		}
	}

	// bare mpeg frame sync
	if len(header) >= 2 && header[0] == 0xff && header[1]&0xe0 == 0xe0 && header[1]&0x06 != 0 {
		return ".mp3", true
	}

	return "", false
}

// Extension decrypts the first bytes of the file and guesses the extension
// of the audio format. A failure usually means the key is wrong.
func (d *Decryptor) Extension() (string, error) {
	header := make([]byte, min(sniffSize, d.size))
	if _, err := io.ReadFull(io.NewSectionReader(d, 0, d.size), header); err != nil {
		return "", fmt.Errorf("failed reading audio header: %w", err)
	}

	ext, ok := SniffExtension(header)
	if !ok {
		return "", fmt.Errorf("%w: header %x", ErrUnknownAudioFormat, header)
	}

	return ext, nil
}

// Validate fails with ErrUnknownAudioFormat when the decrypted header is not
// a known audio format.
func (d *Decryptor) Validate() error {
	_, err := d.Extension()
	return err
}

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffExtension(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		ext    string
		ok     bool
	}{
		{"flac", []byte("fLaC\x00\x00\x00\x22"), ".flac", true},
		{"ogg", []byte("OggS\x00\x02"), ".ogg", true},
		{"mp3 id3", []byte("ID3\x04\x00"), ".mp3", true},
		{"mp3 frame", []byte{0xff, 0xfb, 0x90, 0x64}, ".mp3", true},
		{"m4a", []byte("\x00\x00\x00\x20ftypM4A "), ".m4a", true},
		{"wav", []byte("RIFF\x24\x08\x00\x00WAVEfmt "), ".wav", true},
		{"ape", []byte("MAC \x96\x0f"), ".ape", true},
		{"wma", []byte{0x30, 0x26, 0xb2, 0x75, 0x8e, 0x66, 0xcf, 0x11, 0xa6, 0xd9}, ".wma", true},
		{"garbage", []byte{0x12, 0x34, 0x56, 0x78, 0x9a}, "", false},
		{"empty", nil, "", false},
		{"truncated", []byte("fLa"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := SniffExtension(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

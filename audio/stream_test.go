package audio_test

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/devgianlu/go-qmc2/audio"
	"github.com/devgianlu/go-qmc2/qmc2"
	"github.com/stretchr/testify/require"
)

func TestStreamDecryptor(t *testing.T) {
	key := make([]byte, 333)
	for i := range key {
		key[i] = byte(i*5 + 1)
	}

	c, err := qmc2.NewCipherFromKey(key)
	require.NoError(t, err)

	plain := make([]byte, 0x1400*2+999)
	for i := range plain {
		plain[i] = byte(i)
	}

	enc := bytes.Clone(plain)
	c.Decrypt(0, enc)

	// one byte reads exercise every offset on its own
	for _, r := range []io.Reader{bytes.NewReader(enc), iotest.OneByteReader(bytes.NewReader(enc)), iotest.HalfReader(bytes.NewReader(enc))} {
		result, err := io.ReadAll(audio.NewStreamDecryptor(r, c))
		require.NoError(t, err)
		require.Equal(t, plain, result)
	}
}

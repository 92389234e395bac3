package go_qmc2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObfuscateEKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"short", "abcd", "****"},
		{"boundary", "abcdefghijkl", "abcd****ijkl"},
		{"long", "UVFNdXNpYyBFbmNWMixLZXk6", "UVFN****************ZXk6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObfuscateEKey(tt.in))
		})
	}
}

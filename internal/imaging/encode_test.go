package imaging

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadBase64(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"already aligned", "QUJD", "QUJD"},
		{"one pad", "QUI", "QUI="},
		{"two pads", "QQ", "QQ=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PadBase64(tt.in))
		})
	}
}

func TestPadBase64_AlwaysMultipleOfFour(t *testing.T) {
	// Raw (unpadded) encodings of every length remainder must come out aligned.
	for size := 0; size <= 32; size++ {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 7)
		}
		raw := base64.RawStdEncoding.EncodeToString(data)
		padded := PadBase64(raw)

		assert.Zerof(t, len(padded)%4, "size %d: padded length %d", size, len(padded))
		assert.Equal(t, base64.StdEncoding.EncodeToString(data), padded, "size %d", size)
	}
}

func TestEncodeDataURL(t *testing.T) {
	url := EncodeDataURL([]byte{0xFF, 0xD8, 0xFF})

	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	payload := strings.TrimPrefix(url, "data:image/jpeg;base64,")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, decoded)
}

func TestEncodeImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	content := []byte("not really a png, bytes pass through verbatim")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	url, err := EncodeImageFile(path)
	require.NoError(t, err)

	payload := strings.TrimPrefix(url, "data:image/jpeg;base64,")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestEncodeImageFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.jpg")

	_, err := EncodeImageFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "not found")
}

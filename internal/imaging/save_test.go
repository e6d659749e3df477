package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes renders a solid test image the way the browser hands us captures.
func pngBytes(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSaveJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.jpg")
	data := pngBytes(t, 64, 48, color.RGBA{200, 30, 30, 255})

	require.NoError(t, SaveJPEG(data, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestSaveJPEG_InvalidBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.jpg")

	err := SaveJPEG([]byte("definitely not an image"), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestVerifyNonEmpty(t *testing.T) {
	dir := t.TempDir()

	full := filepath.Join(dir, "full.jpg")
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	assert.NoError(t, VerifyNonEmpty(full))

	empty := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Error(t, VerifyNonEmpty(empty))

	assert.Error(t, VerifyNonEmpty(filepath.Join(dir, "missing.jpg")))
}

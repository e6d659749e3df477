package imaging

import (
	"bytes"
	"fmt"
	"os"

	imglib "github.com/disintegration/imaging"
)

// SaveJPEG decodes captured screenshot bytes (typically PNG from the browser)
// and writes them to path as a maximum-quality JPEG. The extension on path
// must be .jpg or .jpeg.
func SaveJPEG(data []byte, path string) error {
	img, err := imglib.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode captured image: %w", err)
	}
	if err := imglib.Save(img, path, imglib.JPEGQuality(100)); err != nil {
		return fmt.Errorf("save screenshot %s: %w", path, err)
	}
	return VerifyNonEmpty(path)
}

// VerifyNonEmpty fails when the file at path is missing or has zero bytes.
func VerifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("screenshot not written: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("screenshot file is empty: %s", path)
	}
	return nil
}

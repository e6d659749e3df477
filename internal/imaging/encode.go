package imaging

import (
	"encoding/base64"
	"fmt"
	"os"
)

// dataURLPrefix labels every payload as JPEG regardless of the source format.
// The backend's decoder sniffs the real content, so the label is nominal; what
// matters is that the bytes arrive unmodified.
const dataURLPrefix = "data:image/jpeg;base64,"

// EncodeImageFile reads the image at path and returns it in the backend's
// data URL form. The existence check runs before the read so a missing file
// is reported by name without touching the backend.
func EncodeImageFile(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("image file not found: %s", path)
		}
		return "", fmt.Errorf("stat image %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	return EncodeDataURL(data), nil
}

// EncodeDataURL base64-encodes raw image bytes into a data URL.
func EncodeDataURL(data []byte) string {
	return dataURLPrefix + PadBase64(base64.RawStdEncoding.EncodeToString(data))
}

// PadBase64 appends '=' until the encoded string's length is a multiple of four.
func PadBase64(s string) string {
	for len(s)%4 != 0 {
		s += "="
	}
	return s
}

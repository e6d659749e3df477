package browser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Viewport limits for page emulation. Requests above the maximum are capped,
// and anything unusable falls back to the default.
const (
	MaxViewportWidth      = 2560
	MaxViewportHeight     = 1440
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Viewport is an effective emulated page size.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport returns the viewport used when a caller asks for nothing.
func DefaultViewport() Viewport {
	return Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
}

// ClampViewport resolves requested dimensions to an effective viewport.
// Each dimension is handled independently: a positive request is capped at
// the maximum, anything else becomes the default.
func ClampViewport(width, height int) Viewport {
	vp := DefaultViewport()
	if width > 0 {
		vp.Width = min(width, MaxViewportWidth)
	}
	if height > 0 {
		vp.Height = min(height, MaxViewportHeight)
	}
	return vp
}

// ParseViewport decodes a loosely typed viewport argument from a tool call.
// Values that are not positive numbers (missing fields, strings that do not
// parse, negatives) default rather than erroring.
func ParseViewport(raw json.RawMessage) Viewport {
	var req struct {
		Width  interface{} `json:"width"`
		Height interface{} `json:"height"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &req)
	}
	return ClampViewport(asInt(req.Width), asInt(req.Height))
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return 0
}

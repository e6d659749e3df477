package browser

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightbridge/moondream-mcp/internal/config"
)

func TestScreenshotName(t *testing.T) {
	now := time.Now()
	name := screenshotName(now)

	assert.True(t, strings.HasPrefix(name, "shot-"), name)
	assert.True(t, strings.HasSuffix(name, ".jpg"), name)

	parts := strings.SplitN(strings.TrimSuffix(name, ".jpg"), "-", 3)
	require.Len(t, parts, 3)

	ms, err := strconv.ParseInt(parts[1], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), ms)
	assert.Len(t, parts[2], 8)

	// Same instant, distinct names.
	assert.NotEqual(t, name, screenshotName(now))
}

func TestReadinessScript(t *testing.T) {
	loose := readinessScript(false)
	assert.Contains(t, loose, `nav, [role=\"navigation\"]`)
	assert.Contains(t, loose, "querySelectorAll('a')")
	assert.Contains(t, loose, "getComputedStyle")

	strict := readinessScript(true)
	assert.Contains(t, strict, `[role=\"navigation\"]`)
	assert.NotContains(t, strict, "nav, ")
}

func TestAllowedResources(t *testing.T) {
	allowed := []proto.NetworkResourceType{
		proto.NetworkResourceTypeDocument,
		proto.NetworkResourceTypeScript,
		proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeFetch,
		proto.NetworkResourceTypeXHR,
		proto.NetworkResourceTypeWebSocket,
	}
	for _, rt := range allowed {
		assert.True(t, allowedResources[rt], string(rt))
	}

	blocked := []proto.NetworkResourceType{
		proto.NetworkResourceTypeMedia,
		proto.NetworkResourceTypePing,
		proto.NetworkResourceTypeManifest,
		proto.NetworkResourceTypeEventSource,
		proto.NetworkResourceTypeOther,
	}
	for _, rt := range blocked {
		assert.False(t, allowedResources[rt], string(rt))
	}
}

func TestCapturer_CloseIdempotent(t *testing.T) {
	c := NewCapturer(config.Browser{}, nil)

	// Never started: closing is a harmless no-op, twice.
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, sleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepWithContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

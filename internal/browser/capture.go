package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sightbridge/moondream-mcp/internal/config"
	"github.com/sightbridge/moondream-mcp/internal/imaging"
)

const (
	// callBudget bounds one whole capture, retries included.
	callBudget = 120 * time.Second

	navAttempts    = 3
	navRetryDelay  = 2 * time.Second
	attemptTimeout = 60 * time.Second

	stableWindow = 500 * time.Millisecond
	readyPoll    = 500 * time.Millisecond
)

// allowedResources is the set of resource types a capture actually needs;
// everything else is aborted at the network layer.
var allowedResources = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument:   true,
	proto.NetworkResourceTypeScript:     true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeFetch:      true,
	proto.NetworkResourceTypeXHR:        true,
	proto.NetworkResourceTypeWebSocket:  true,
}

// Capturer owns the shared headless browser and turns URLs into saved
// screenshots. The browser launches lazily on the first capture and is
// reused until Close.
type Capturer struct {
	cfg config.Browser
	log *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewCapturer builds a capturer; the browser is not launched yet.
func NewCapturer(cfg config.Browser, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		cfg: cfg,
		log: logger.With(zap.String("component", "capturer")),
	}
}

// ensureStarted launches the shared browser, or relaunches it when a
// previous instance has gone away underneath us.
func (c *Capturer) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		c.log.Warn("stale browser connection, relaunching")
		_ = c.browser.Close()
		c.browser = nil
	}

	l := launcher.New().Headless(c.cfg.IsHeadless()).NoSandbox(true)
	if c.cfg.Bin != "" {
		l = l.Bin(c.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	c.browser = browser
	c.log.Info("browser started", zap.Bool("headless", c.cfg.IsHeadless()))
	return nil
}

// Capture loads target in an isolated page and writes a full-page JPEG
// under the screenshots directory, returning the file path. wait bounds the
// content-readiness poll; vp is the requested viewport before clamping.
func (c *Capturer) Capture(ctx context.Context, target string, wait time.Duration, vp Viewport) (string, error) {
	if err := c.ensureStarted(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	c.mu.Lock()
	browser := c.browser
	c.mu.Unlock()
	if browser == nil {
		return "", errors.New("browser closed")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	// Close the unbound page so release works even after ctx expires.
	defer func() {
		if cerr := page.Close(); cerr != nil {
			c.log.Debug("close page", zap.Error(cerr))
		}
	}()
	p := page.Context(ctx)

	effective := ClampViewport(vp.Width, vp.Height)
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             effective.Width,
		Height:            effective.Height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(p); err != nil {
		c.log.Warn("set viewport", zap.Error(err))
	}

	router := p.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if allowedResources[h.Request.Type()] {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
	}); err != nil {
		return "", fmt.Errorf("install request filter: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := c.navigate(ctx, p, target); err != nil {
		return "", err
	}

	c.waitForContent(ctx, p, target, wait)

	if c.cfg.AnnotateLinks() {
		if _, err := p.Evaluate(&rod.EvalOptions{JS: annotateScript, ByValue: true, AwaitPromise: true}); err != nil {
			c.log.Debug("annotate links", zap.Error(err))
		}
	}

	data, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	if err := os.MkdirAll(c.cfg.ScreenshotsDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshots dir %s: %w", c.cfg.ScreenshotsDir, err)
	}
	path := filepath.Join(c.cfg.ScreenshotsDir, screenshotName(time.Now()))
	if err := imaging.SaveJPEG(data, path); err != nil {
		return "", err
	}

	c.log.Info("screenshot saved",
		zap.String("url", target),
		zap.String("path", path),
		zap.Int("width", effective.Width),
		zap.Int("height", effective.Height))
	return path, nil
}

// navigate drives the page to target, retrying transient failures. Each
// attempt waits for the load event, then for the DOM and the network to go
// quiet.
func (c *Capturer) navigate(ctx context.Context, page *rod.Page, target string) error {
	var navErr error
	for attempt := 1; attempt <= navAttempts; attempt++ {
		navErr = navigateOnce(page, target)
		if navErr == nil {
			if attempt > 1 {
				c.log.Info("navigation recovered", zap.Int("attempt", attempt), zap.String("url", target))
			}
			return nil
		}
		c.log.Warn("navigation attempt failed",
			zap.Int("attempt", attempt),
			zap.String("url", target),
			zap.Error(navErr))
		if attempt < navAttempts {
			if err := sleepWithContext(ctx, navRetryDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("navigate to %s after %d attempts: %w", target, navAttempts, navErr)
}

func navigateOnce(page *rod.Page, target string) error {
	p := page.Timeout(attemptTimeout)
	if err := p.Navigate(target); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	// WaitStable also covers DOM quiescence and request idle.
	if err := p.WaitStable(stableWindow); err != nil {
		return fmt.Errorf("stabilize: %w", err)
	}
	return nil
}

// waitForContent polls the readiness predicate until it passes or the
// caller's wait budget elapses. The budget elapsing is not an error: the
// predicate is a heuristic and a late page is still worth capturing.
func (c *Capturer) waitForContent(ctx context.Context, page *rod.Page, target string, wait time.Duration) {
	script := readinessScript(strings.HasPrefix(target, "file://"))
	deadline := time.Now().Add(wait)
	for {
		res, err := page.Evaluate(&rod.EvalOptions{JS: script, ByValue: true, AwaitPromise: true})
		if err == nil && res != nil && res.Value.Bool() {
			return
		}
		if time.Now().After(deadline) {
			c.log.Warn("content readiness wait elapsed, capturing anyway",
				zap.String("url", target),
				zap.Duration("wait", wait))
			return
		}
		if err := sleepWithContext(ctx, readyPoll); err != nil {
			return
		}
	}
}

// Close shuts the shared browser down. Safe to call repeatedly, including
// before the first capture.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	c.log.Info("browser stopped")
	return err
}

func screenshotName(now time.Time) string {
	return fmt.Sprintf("shot-%d-%s.jpg", now.UnixMilli(), uuid.NewString()[:8])
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

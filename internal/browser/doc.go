// Package browser captures web pages as screenshot files using a shared
// headless Chromium instance driven over the DevTools protocol.
//
// One browser serves the whole process. It launches lazily on the first
// capture (headless, sandbox disabled for container use) and is reused
// until Close; a connection that has gone stale is detected with a version
// probe and replaced. Every capture gets its own incognito page, which is
// always released, so no state leaks between calls.
//
// # Capture Sequence
//
// A capture applies, in order: a clamped viewport (maximum 2560×1440,
// default 1280×720), a request-interception filter that aborts every
// resource type a screenshot does not need, navigation with bounded
// retries, a content-readiness poll, optional link annotation, and a
// full-page screenshot saved as a maximum-quality JPEG under the
// screenshots directory.
//
// # Timeouts
//
// The whole capture runs under a 120 second budget. Navigation is retried
// up to 3 times with 2 seconds between attempts; each attempt has 60
// seconds to reach the load event and settle the DOM and network. The
// content-readiness poll checks every 500ms up to the caller's wait time
// and gives up without failing the capture: the predicate (a navigation
// landmark with at least one link and resolved colors) is a heuristic, and
// a page that never satisfies it is still worth photographing.
package browser

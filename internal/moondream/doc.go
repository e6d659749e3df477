// Package moondream supervises the Python inference backend and speaks its
// HTTP contract.
//
// The backend is a FastAPI wrapper around the moondream vision model,
// launched as a child process on a loopback port. This package owns the
// whole of that arrangement:
//
//   - Supervisor provisions the environment (uv, virtual environment,
//     packages, model weights), launches the child and polls it until it
//     answers HTTP, then tears it down on Cleanup.
//   - Client sends inference requests to the running child.
//   - ClassifyPrompt maps free-form prompt text onto the backend's three
//     endpoints.
//
// # Lifecycle
//
// A Supervisor moves strictly forward through not-started, starting, ready
// and stopped. Setup is idempotent: a ready supervisor returns immediately,
// concurrent callers share one provisioning run, and every provisioning
// step skips work that a previous run already completed. Cleanup is also
// idempotent and final; Setup after Cleanup returns ErrStopped rather than
// resurrecting the child.
//
// # Readiness
//
// The readiness probe posts an intentionally incomplete JSON body to the
// caption endpoint. Any HTTP response, including an error status, counts as
// ready: the check establishes that the server is accepting requests, not
// that the model can infer. Model load failures surface on the first real
// tool call instead.
//
// # Wire Format
//
// Requests carry the image as a base64 data URL in the image_url field.
// Responses are small JSON objects (caption, objects or answer). Non-2xx
// responses become an *APIError carrying the status line and raw body.
package moondream

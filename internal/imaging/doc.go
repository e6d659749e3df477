// Package imaging moves images between the filesystem and the backend's
// wire format.
//
// Two concerns live here: encoding a local image file into the base64 data
// URL the inference backend expects, and persisting captured screenshots as
// maximum-quality JPEG files.
//
// # Encoding
//
// The backend accepts images only as data URLs of the form
// "data:image/jpeg;base64,<payload>". EncodeImageFile reads any file and
// produces that form without decoding the pixels; the backend's own decoder
// is tolerant of the actual format behind the jpeg label. Base64 padding is
// applied explicitly so every payload length is a multiple of four.
//
// # Screenshots
//
// SaveJPEG converts a captured PNG to JPEG at quality 100 and verifies the
// written file is non-empty before reporting success. A zero-byte screenshot
// means the capture failed even if the browser reported none.
//
// # Error Handling
//
// Functions return errors for:
//   - Missing or unreadable input files
//   - Undecodable capture bytes
//   - Empty files after a write
package imaging

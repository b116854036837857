// Package media produces the JPEG thumbnails stored in the cache.
//
// Two backends implement Generator:
//   - ImagingGenerator: pure Go decode and Lanczos resize via imaging
//   - VipsGenerator: libvips with decode-time shrinking, for very large files
//
// Both fit the image inside a square of the requested size, preserve the
// aspect ratio, never upscale, and return nil when the file cannot be
// decoded.
package media

// Package rawdecode extracts the embedded JPEG preview from camera RAW files.
//
// The Decoder shells out to exiftool and walks the preview tags from largest
// to smallest (PreviewImage, JpgFromRaw, ThumbnailImage), returning the first
// JPEG it finds. Non-JPEG payloads are reported as
// services.ErrUnsupportedPreviewFormat and files without any embedded preview
// as services.ErrNoPreviewAvailable. Command execution sits behind the
// Executor interface so tests can run without exiftool installed.
package rawdecode

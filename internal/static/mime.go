package static

import "strings"

// DefaultMimeType is used for unknown extensions.
const DefaultMimeType = "application/octet-stream"

var mimeTypes = map[string]string{
	"html":  "text/html; charset=utf-8",
	"htm":   "text/html; charset=utf-8",
	"css":   "text/css; charset=utf-8",
	"js":    "application/javascript; charset=utf-8",
	"mjs":   "application/javascript; charset=utf-8",
	"json":  "application/json",
	"xml":   "application/xml",
	"txt":   "text/plain; charset=utf-8",
	"csv":   "text/csv",
	"png":   "image/png",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"gif":   "image/gif",
	"svg":   "image/svg+xml",
	"ico":   "image/x-icon",
	"webp":  "image/webp",
	"avif":  "image/avif",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"pdf":   "application/pdf",
	"zip":   "application/zip",
	"wasm":  "application/wasm",
	"mp4":   "video/mp4",
	"webm":  "video/webm",
	"mp3":   "audio/mpeg",
}

// MimeType maps a file extension, with or without the leading dot, to a
// Content-Type value. Matching is case-insensitive.
func MimeType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	return DefaultMimeType
}

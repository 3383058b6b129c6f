package artifact

import (
	"mime"
	"strings"
)

// preferred wins over mime.ExtensionsByType, whose first entry is not always
// the usual one (image/jpeg yields ".jfif" on some systems).
var preferred = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/jpg":        ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/bmp":        ".bmp",
	"image/svg+xml":    ".svg",
	"image/x-icon":     ".ico",
	"text/html":        ".html",
	"text/plain":       ".txt",
	"application/json": ".json",
}

// ExtensionFor returns the file extension, dot included, for a Content-Type
// value. Parameters such as charset are ignored. Unknown types yield "".
func ExtensionFor(contentType string) string {
	mediaType := mediaTypeOf(contentType)
	if mediaType == "" {
		return ""
	}
	if ext, ok := preferred[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

package mirror

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMediaType is returned for paths whose extension is not recognised.
const DefaultMediaType = "application/octet-stream"

// mediaTypes is a fixed table so classification does not depend on the host's
// mime.types files.
var mediaTypes = map[string]string{
	".md":          "text/markdown",
	".markdown":    "text/markdown",
	".txt":         "text/plain",
	".text":        "text/plain",
	".log":         "text/plain",
	".html":        "text/html",
	".htm":         "text/html",
	".css":         "text/css",
	".csv":         "text/csv",
	".tsv":         "text/tab-separated-values",
	".ics":         "text/calendar",
	".vtt":         "text/vtt",
	".js":          "text/javascript",
	".mjs":         "text/javascript",
	".cjs":         "text/javascript",
	".json":        "application/json",
	".map":         "application/json",
	".geojson":     "application/geo+json",
	".webmanifest": "application/manifest+json",
	".xml":         "application/xml",
	".rss":         "application/rss+xml",
	".atom":        "application/atom+xml",
	".svg":         "image/svg+xml",
	".yaml":        "application/yaml",
	".yml":         "application/yaml",
	".toml":        "application/toml",
	".sh":          "application/x-sh",
	".go":          "text/plain",
	".py":          "text/x-python",
	".rb":          "text/plain",
	".java":        "text/plain",
	".c":           "text/plain",
	".h":           "text/plain",
	".rs":          "text/plain",
	".ts":          "text/plain",
	".tsx":         "text/plain",
	".jsx":         "text/plain",
	".sql":         "text/plain",
	".ini":         "text/plain",
	".cfg":         "text/plain",
	".rtf":         "text/rtf",
	".png":         "image/png",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".gif":         "image/gif",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".bmp":         "image/bmp",
	".ico":         "image/x-icon",
	".tif":         "image/tiff",
	".tiff":        "image/tiff",
	".pdf":         "application/pdf",
	".zip":         "application/zip",
	".gz":          "application/gzip",
	".tgz":         "application/gzip",
	".tar":         "application/x-tar",
	".bz2":         "application/x-bzip2",
	".7z":          "application/x-7z-compressed",
	".wasm":        "application/wasm",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".otf":         "font/otf",
	".eot":         "application/vnd.ms-fontobject",
	".mp3":         "audio/mpeg",
	".wav":         "audio/wav",
	".ogg":         "audio/ogg",
	".mp4":         "video/mp4",
	".webm":        "video/webm",
	".mov":         "video/quicktime",
}

// wellKnownText covers conventional extensionless repository files.
var wellKnownText = map[string]bool{
	"makefile":   true,
	"dockerfile": true,
	"license":    true,
	"readme":     true,
	"changelog":  true,
	"authors":    true,
	"codeowners": true,

	".gitignore":     true,
	".gitattributes": true,
	".editorconfig":  true,
}

// textual lists media types outside the text/plain tree that are still text.
var textual = map[string]bool{
	"application/yaml": true,
	"application/toml": true,
	"application/x-sh": true,
}

// Classify maps a file path to a media type and whether its bytes are text.
// It depends only on the path and never fails.
func Classify(p string) (mediaType string, isText bool) {
	base := path.Base(p)
	ext := strings.ToLower(path.Ext(base))
	if ext == "" || ext == base {
		if wellKnownText[strings.ToLower(base)] {
			return "text/plain", true
		}
		return DefaultMediaType, false
	}
	mt, ok := mediaTypes[ext]
	if !ok {
		return DefaultMediaType, false
	}
	return mt, isTextual(mt)
}

// ContentTypeHeader renders the Content-Type stored with an object.
func ContentTypeHeader(mediaType string, isText bool) string {
	if isText {
		return mediaType + "; charset=utf-8"
	}
	return mediaType
}

func isTextual(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") || textual[mediaType] {
		return true
	}
	if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
		return true
	}
	for m := mimetype.Lookup(mediaType); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

package catalog

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// unsafeKeyChars matches everything that may not appear in a storage key.
var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeKey derives a storage key from an upload name: the basename with
// every unsafe character collapsed to a single underscore. The result is
// never empty and never a dotfile.
func SanitizeKey(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	key := unsafeKeyChars.ReplaceAllString(base, "_")
	key = strings.Trim(key, "._")
	if key == "" {
		return "file"
	}
	return key
}

// SplitExt splits a storage key into stem and extension ("a.tar.gz" yields
// "a.tar", ".gz").
func SplitExt(key string) (stem, ext string) {
	ext = path.Ext(key)
	return strings.TrimSuffix(key, ext), ext
}

// DisambiguateKey appends -1, -2, ... before the extension until taken
// reports the key free. Storage-key uniqueness among active entries is
// enforced here, at write time, not during reconciliation.
func DisambiguateKey(key string, taken func(string) bool) string {
	if !taken(key) {
		return key
	}
	stem, ext := SplitExt(key)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// OctetStream is the fallback content type for unknown extensions.
const OctetStream = "application/octet-stream"

// extContentTypes maps lower-case file extensions to content types for
// objects discovered by a scan, where no upload request ever told us the
// type.
var extContentTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// ContentTypeForKey infers a content type from a storage key's extension.
func ContentTypeForKey(key string) string {
	if ct, ok := extContentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return OctetStream
}

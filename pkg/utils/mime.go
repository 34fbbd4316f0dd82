package utils

import (
	"mime"
	"net/http"
	"strings"
)

// DetectMimeAndExt analyzes a byte slice to determine both its MIME type and standard extension.
// Anything that does not sniff as an image is reported as ("image/png", ".png"), the format
// the image service expects by default.
func DetectMimeAndExt(data []byte) (string, string) {
	mimeType := "image/png"
	if len(data) > 0 {
		if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
			mimeType = sniffed
		}
	}
	return mimeType, mimeToExt(mimeType)
}

// mimeToExt converts a MIME type to its preferred extension, defaulting to ".png".
func mimeToExt(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ".png"
	}
	return exts[0]
}

package catalog

import (
	"os"
	"path/filepath"
	"strings"
)

// MIMEFromPath maps a media file extension to the MIME type accepted by the
// labeling service. The second return is false for unsupported formats.
func MIMEFromPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".png":
		return "image/png", true
	case ".webp":
		return "image/webp", true
	case ".gif":
		return "image/gif", true
	default:
		return "", false
	}
}

// StateOf classifies an item's media readiness for the given image kind.
func StateOf(item Item, kind ImageKind) MediaState {
	path := item.ImagePath(kind)
	if path == "" {
		return StateMissingPath
	}
	if _, err := os.Stat(path); err != nil {
		return StateMissingFile
	}
	if _, ok := MIMEFromPath(path); !ok {
		return StateUnsupported
	}
	return StateReady
}

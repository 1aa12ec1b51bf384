package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"promptfinder/internal/ids"
	"promptfinder/internal/models"
)

const (
	MaxImagePresignBytes = 3 << 20
	MaxVideoPresignBytes = 15 << 20
)

var imageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

var videoTypes = map[string]string{
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
}

var imageExts = map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}}
var videoExts = map[string]struct{}{"mp4": {}, "webm": {}, "mov": {}}

// KindForContentType classifies a declared MIME type. ok is false for anything not uploadable.
func KindForContentType(contentType string) (models.MediaKind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := imageTypes[ct]; ok {
		return models.MediaImage, true
	}
	if _, ok := videoTypes[ct]; ok {
		return models.MediaVideo, true
	}
	return "", false
}

// ValidatePresign checks type and size against the presign caps.
func ValidatePresign(contentType string, contentLength int64) (models.MediaKind, error) {
	kind, ok := KindForContentType(contentType)
	if !ok {
		return "", &PresignError{Message: fmt.Sprintf("Invalid content type: %s", contentType)}
	}
	if contentLength <= 0 {
		return "", &PresignError{Message: "Content length must be positive."}
	}
	limit := int64(MaxImagePresignBytes)
	if kind == models.MediaVideo {
		limit = MaxVideoPresignBytes
	}
	if contentLength > limit {
		return "", &PresignError{Message: fmt.Sprintf("File too large. Maximum size is %dMB.", limit>>20)}
	}
	return kind, nil
}

// extensionFor picks the key extension from the suggested filename, falling back to the
// declared type and finally to jpg/mp4.
func extensionFor(kind models.MediaKind, contentType, suggestedName string) string {
	allowed, defaults, fallback := imageExts, imageTypes, "jpg"
	if kind == models.MediaVideo {
		allowed, defaults, fallback = videoExts, videoTypes, "mp4"
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(suggestedName)), ".")
	if _, ok := allowed[ext]; ok {
		return ext
	}
	if ext, ok := defaults[strings.ToLower(contentType)]; ok {
		return ext
	}
	return fallback
}

// UploadKey builds media/{images|videos}/YYYY/MM/original/{prefix}{uuid12}.{ext}.
func UploadKey(kind models.MediaKind, ext string, now time.Time) string {
	prefix := ""
	folder := "images"
	if kind == models.MediaVideo {
		prefix = "v"
		folder = "videos"
	}
	return fmt.Sprintf("media/%s/%s/%s/%s/%s%s.%s",
		folder, now.UTC().Format("2006"), now.UTC().Format("01"), models.VariantOriginal, prefix, ids.Short(), ext)
}

// VariantKey swaps the variant directory and extension of an original key:
// media/images/2025/01/original/abc.png -> media/images/2025/01/thumb/abc.png
func VariantKey(originalKey, variant, ext string) string {
	dir, file := path.Split(originalKey)
	base := strings.TrimSuffix(file, path.Ext(file))
	parent := path.Dir(strings.TrimSuffix(dir, "/"))
	return path.Join(parent, variant, base+"."+ext)
}

// RenamedKey keeps the directory and extension of key and replaces the file base.
func RenamedKey(key, base string) string {
	dir, file := path.Split(key)
	return dir + base + path.Ext(file)
}

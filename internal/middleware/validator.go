package middleware

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

// MaxImageBytes caps uploaded photos.
const MaxImageBytes = 10 << 20

// MaxMessageRunes caps chat messages.
const MaxMessageRunes = 4000

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidateImageUpload checks the declared or sniffed content type and size
// of an uploaded photo.
func ValidateImageUpload(contentType string, size int64) error {
	if size <= 0 {
		return fmt.Errorf("image is empty")
	}
	if size > MaxImageBytes {
		return fmt.Errorf("image exceeds %d MiB", MaxImageBytes>>20)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !allowedImageTypes[ct] {
		return fmt.Errorf("unsupported image type %q (allowed: jpeg, png, webp, gif)", contentType)
	}
	return nil
}

// ValidateMessage checks a chat message after sanitizing.
func ValidateMessage(msg string) error {
	if msg == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if utf8.RuneCountInString(msg) > MaxMessageRunes {
		return fmt.Errorf("message exceeds %d characters", MaxMessageRunes)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

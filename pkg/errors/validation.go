package errors

import (
	"math"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextRunes is the maximum number of code points in a keycap legend.
const MaxTextRunes = 4

// ValidateFontName validates an uploaded or requested font file name.
// It rejects names that could be used for path traversal and names without
// a supported outline font extension.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - No hidden files
//   - Extension must be .ttf or .otf (case-insensitive)
//   - Maximum length of 128 characters
func ValidateFontName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidFontName, "font name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidFontName, "font name too long (max 128 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidFontName, "font name contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return New(ErrCodeInvalidFontName, "font name cannot contain path components")
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidFontName, "font name cannot be a hidden file")
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf":
	default:
		return New(ErrCodeInvalidFontName, "font must be a .ttf or .otf file: %q", name)
	}

	return nil
}

// ValidateKeycapText validates a keycap legend.
// Empty text is valid and means "no engraving".
func ValidateKeycapText(text string) error {
	if !utf8.ValidString(text) {
		return New(ErrCodeInvalidText, "text is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(text); n > MaxTextRunes {
		return New(ErrCodeInvalidText, "text %q has %d code points (max %d)", text, n, MaxTextRunes)
	}
	for _, r := range text {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidText, "text contains control characters")
		}
	}
	return nil
}

// ValidateRange checks that a physical dimension lies within [lo, hi].
// NaN and infinite values are always rejected.
func ValidateRange(field string, v, lo, hi float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return New(ErrCodeInvalidConfig, "%s must be a finite number", field)
	}
	if v < lo || v > hi {
		return New(ErrCodeInvalidConfig, "%s %.3gmm out of range [%g, %g]", field, v, lo, hi)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}

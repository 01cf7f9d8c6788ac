package security

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	ErrPathTraversal  = errors.New("path traversal detected")
	ErrAbsolutePath   = errors.New("absolute paths are not allowed")
	ErrReservedName   = errors.New("reserved filename not allowed")
	ErrLeadingHyphen  = errors.New("filename cannot start with hyphen")
	ErrImageExtension = errors.New("image files must end in .jpg, .jpeg, .png or .webp")
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// Device names Windows refuses as file stems.
var reservedNames = func() map[string]bool {
	m := map[string]bool{"con": true, "prn": true, "aux": true, "nul": true}
	for i := '1'; i <= '9'; i++ {
		m["com"+string(i)] = true
		m["lpt"+string(i)] = true
	}
	return m
}()

// ValidateSavePath checks a user-supplied relative path for a saved image.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return ErrPathTraversal
	}

	base := filepath.Base(filepath.Clean(path))
	if reservedNames[strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))] {
		return ErrReservedName
	}
	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}
	return CheckImageExtension(path)
}

func CheckImageExtension(path string) error {
	if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return ErrImageExtension
	}
	return nil
}

// Slug turns a topic or prompt into a lowercase filename stem. Letters and
// digits are kept and every other run of characters becomes one hyphen. The
// result is cut to max runes when max > 0 and may be empty.
func Slug(label string, max int) string {
	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(label) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteByte('-')
		}
		gap = false
		b.WriteRune(r)
	}

	slug := b.String()
	if r := []rune(slug); max > 0 && len(r) > max {
		slug = strings.TrimRight(string(r[:max]), "-")
	}
	if reservedNames[slug] {
		slug += "_"
	}
	return slug
}

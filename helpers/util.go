package helpers

import (
	"errors"
	"regexp"
	"strings"
)

// GetSplitPart returns the index-th part of target split by separate
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index < 0 || index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// LastPathSegment returns the last non-empty segment of a URL path
func LastPathSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return parts[len(parts)-1]
}

var (
	nonWord     = regexp.MustCompile(`[^a-z0-9\-]+`)
	dashes      = regexp.MustCompile(`-{2,}`)
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._\-]+`)
)

// FormatCityName turns "North Vancouver" into "north-vancouver" for use in
// listing URL templates.
func FormatCityName(city string) string {
	s := strings.ToLower(strings.TrimSpace(city))
	s = strings.Join(strings.Fields(s), "-")
	s = nonWord.ReplaceAllString(s, "")
	return strings.Trim(dashes.ReplaceAllString(s, "-"), "-")
}

// SanitizeFilename makes name safe to use as a single path element
func SanitizeFilename(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "_"
	}
	if len(s) > 180 {
		s = s[:180]
	}
	return s
}

package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	filenameStripRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	windowsDeviceNames = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
	}
)

// FallbackFilename replaces a name that sanitizes to nothing.
const FallbackFilename = "upload"

// AllowedFile reports whether name has an extension in allowed.
// The comparison is case-insensitive and only the text after the last dot counts.
//
// Arguments:
//   - name: The client supplied filename.
//   - allowed: Lower-case extensions without the dot.
//
// Returns:
//   - bool: True if the extension is allowed.
func AllowedFile(name string, allowed []string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(name[idx+1:])
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// SecureFilename returns a version of name that is safe to join to a directory.
//
// Order of operations:
//  1. NFKD normalization, non-ASCII runes dropped.
//  2. Path separators become spaces.
//  3. Whitespace runs become a single underscore.
//  4. Characters outside [A-Za-z0-9_.-] are removed.
//  5. Leading and trailing dots and underscores are trimmed.
//  6. Windows device names get an underscore prefix.
//
// Arguments:
//   - name: The client supplied filename.
//
// Returns:
//   - string: The sanitized name, FallbackFilename if nothing is left.
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)
	var b strings.Builder
	for _, r := range decomposed {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}

	s := strings.NewReplacer("/", " ", "\\", " ").Replace(b.String())
	s = strings.Join(strings.Fields(s), "_")
	s = filenameStripRe.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")

	if s == "" {
		return FallbackFilename
	}
	if _, ok := windowsDeviceNames[strings.ToUpper(strings.SplitN(s, ".", 2)[0])]; ok {
		s = "_" + s
	}
	return s
}

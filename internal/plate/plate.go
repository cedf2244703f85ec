// Package plate normalizes licence plate text and extracts plates from raw OCR output.
package plate

import (
	"regexp"
	"strings"
)

// patterns are tried in order: two-digit province code, one or two series
// letters and a serial number.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{2}[A-Z]{1,2}\d{4,6}\b`),
	regexp.MustCompile(`\b\d{2}[A-Z]\d{3,5}\b`),
}

var anchored = []*regexp.Regexp{
	regexp.MustCompile(`^\d{2}[A-Z]{1,2}\d{4,6}$`),
	regexp.MustCompile(`^\d{2}[A-Z]\d{3,5}$`),
}

// Normalize upper-cases s and drops everything outside A-Z and 0-9.
// It does not correct look-alike characters.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ocrFix maps characters OCR engines commonly confuse with digits.
var ocrFix = strings.NewReplacer(
	"O", "0",
	"Q", "0",
	"I", "1",
	"L", "1",
	"Z", "2",
	"S", "5",
	"B", "8",
)

// Extract finds a plate in raw OCR text. Look-alike letters outside the
// series part are corrected to digits when the text as read holds no plate.
// It returns false when no plate is found.
func Extract(raw string) (string, bool) {
	normalized := Normalize(raw)
	if normalized == "" {
		return "", false
	}
	fixed := fixSerial(normalized)

	if p, ok := search(normalized); ok {
		return p, true
	}
	if p, ok := search(fixed); ok {
		return p, true
	}

	// OCR sometimes glues neighbouring characters on; scan windows of 10 down to 7.
	if p, ok := scanWindows(normalized); ok {
		return p, true
	}
	return scanWindows(fixed)
}

func search(text string) (string, bool) {
	for _, pat := range patterns {
		if m := pat.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

func scanWindows(text string) (string, bool) {
	for l := 10; l >= 7; l-- {
		for i := 0; i+l <= len(text); i++ {
			chunk := text[i : i+l]
			for _, pat := range anchored {
				if pat.MatchString(chunk) {
					return chunk, true
				}
			}
		}
	}
	return "", false
}

// fixSerial corrects the province code and the serial, keeping the one or two
// series letters after the province code as read.
func fixSerial(s string) string {
	if len(s) < 4 {
		return s
	}
	split := 3
	if !isDigit(s[3]) && len(s) > 4 && isDigit(s[4]) {
		split = 4
	}
	return ocrFix.Replace(s[:2]) + s[2:split] + ocrFix.Replace(s[split:])
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

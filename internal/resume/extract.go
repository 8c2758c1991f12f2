// Package resume parses uploaded resume files into plain text and guesses
// contact details from free text. Everything here is best effort: extraction
// never fails, it just returns empty fields.
package resume

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	emailRe = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d()\-\s]{8,}\d`)
	nameRe  = regexp.MustCompile(`(?im)^\s*name\s*[:\-]\s*(.+)$`)
)

// Contact holds whatever contact details could be guessed from a piece of
// text. Empty fields mean nothing was found.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// ExtractContactDetails scans free text (a chat message or parsed resume)
// for an email address, a phone number, and a plausible name.
func ExtractContactDetails(text string) Contact {
	var c Contact
	if m := emailRe.FindString(text); m != "" {
		c.Email = m
	}
	if m := phoneRe.FindString(text); m != "" {
		c.Phone = strings.TrimSpace(m)
	}
	c.Name = guessName(text)
	return c
}

// guessName looks for an explicit "Name:" label first, then falls back to
// scanning the opening lines for something that reads like a person's name.
func guessName(text string) string {
	if m := nameRe.FindStringSubmatch(text); len(m) == 2 {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}

	lines := strings.Split(text, "\n")
	limit := 6
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 60 {
			continue
		}
		if strings.ContainsAny(line, "@0123456789") {
			continue
		}
		if looksLikeHeader(line) {
			continue
		}
		if isMixedCaseName(line) {
			return line
		}
	}
	return ""
}

// looksLikeHeader filters out section titles such as "EXPERIENCE" or
// "Summary:".
func looksLikeHeader(line string) bool {
	if strings.HasSuffix(line, ":") {
		return true
	}
	upper := strings.ToUpper(line)
	return line == upper && len(line) > 3
}

// isMixedCaseName accepts two to four words that each start with an upper
// case letter and contain letters only.
func isMixedCaseName(line string) bool {
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		runes := []rune(w)
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' {
				return false
			}
		}
	}
	return true
}
